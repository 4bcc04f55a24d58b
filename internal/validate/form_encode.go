package validate

import (
	"io"
	"mime/multipart"
)

// Encode re-encodes the parsed form as a fresh multipart stream for
// forwarding. Parts are written through an io.Pipe so large file uploads
// stream from their temp files instead of being buffered whole.
func (b FormBody) Encode() (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := b.encodeTo(mw)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func (b FormBody) encodeTo(mw *multipart.Writer) error {
	if b.Form == nil {
		return nil
	}
	for name, vals := range b.Form.Value {
		for _, v := range vals {
			if err := mw.WriteField(name, v); err != nil {
				return err
			}
		}
	}
	for name, files := range b.Form.File {
		for _, fh := range files {
			part, err := mw.CreateFormFile(name, fh.Filename)
			if err != nil {
				return err
			}
			f, err := fh.Open()
			if err != nil {
				return err
			}
			_, err = io.Copy(part, f)
			f.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}
