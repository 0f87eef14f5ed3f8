package processor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"time"

	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/ports"
)

// OutputHandler submits finished videos to the collector as a streamed
// multipart POST.
type OutputHandler struct {
	url     string
	timeout time.Duration
	hc      *http.Client
}

func NewOutputHandler(cfg config.Delivery, hc *http.Client) *OutputHandler {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &OutputHandler{url: cfg.URL, timeout: cfg.Timeout, hc: hc}
}

// Deliver posts the video. Telegram jobs add the base64 preview frame and
// the chat id; url jobs add the descriptor as job_data.
func (oh *OutputHandler) Deliver(ctx context.Context, job *Job, res Result) error {
	const op = "processor.deliver"

	if job.Kind.RequiresFrame() && res.FramePath == "" {
		return errors.New(errors.CodeDelivery, "preview frame required").WithField("op", op)
	}

	if oh.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, oh.timeout)
		defer cancel()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeParts(mw, job, res)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oh.url, pr)
	if err != nil {
		pr.Close()
		return errors.WrapWithCode(err, errors.CodeDelivery, op, "build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := oh.hc.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.WrapWithCode(errors.Timeout(op), errors.CodeDelivery, op, "delivery timed out")
		}
		return errors.WrapWithCode(err, errors.CodeDelivery, op, "delivery request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf(errors.CodeDelivery, "collector returned %d", resp.StatusCode).
			WithField("op", op).
			WithField("body", string(body))
	}
	return nil
}

func writeParts(mw *multipart.Writer, job *Job, res Result) error {
	if err := writeFilePart(mw, "video", "final_video.mp4", "video/mp4", res.VideoPath); err != nil {
		return err
	}

	switch job.Kind {
	case KindTelegram:
		w, err := mw.CreateFormField("image_data")
		if err != nil {
			return err
		}
		if err := encodeFile(w, res.FramePath); err != nil {
			return err
		}
		return mw.WriteField("chat_id", job.Descriptor.ChatID.String())
	default:
		data, err := json.Marshal(job.Descriptor)
		if err != nil {
			return err
		}
		return mw.WriteField("job_data", string(data))
	}
}

func writeFilePart(mw *multipart.Writer, field, filename, contentType, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func encodeFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := base64.NewEncoder(base64.StdEncoding, w)
	if _, err := io.Copy(enc, f); err != nil {
		return err
	}
	return enc.Close()
}

// archiveVideo copies the output to storage under ArchiveKey.
func archiveVideo(ctx context.Context, sp ports.StorageProvider, jobID, path string) (ports.PutObjectOutput, error) {
	const op = "processor.archive"

	f, err := os.Open(path)
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "open output")
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	out, err := sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   ArchiveKey(jobID),
		ContentType: "video/mp4",
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "upload output")
	}
	return out, nil
}
