package processor

import (
	"strings"

	jobv1 "televid/internal/contracts/job/v1"
	"televid/internal/pkg/errors"
)

const storageScheme = "storage://"

// ParseJob decodes and validates a queue payload.
func ParseJob(payload string) (*Job, error) {
	const op = "processor.parse"

	d, err := jobv1.Decode([]byte(payload))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, op, "invalid job payload").
			WithField("payload", TailString(payload, 200))
	}

	d.JobID = strings.TrimSpace(d.JobID)
	if d.JobID == "" {
		return nil, errors.ValidationField("job_id", "job_id is required")
	}

	j := &Job{Descriptor: d, ID: SanitizeFilename(d.JobID)}

	kind, kerr := inferKind(d)
	if kerr != nil {
		return nil, kerr.WithField("job_id", d.JobID)
	}
	j.Kind = kind

	switch d.MediaType {
	case jobv1.MediaImage, jobv1.MediaVideo:
	default:
		return nil, errors.ValidationField("media_type", "media_type must be image or video").
			WithField("job_id", d.JobID).
			WithField("media_type", d.MediaType)
	}

	switch kind {
	case KindTelegram:
		if strings.TrimSpace(d.FileID) == "" {
			return nil, errors.ValidationField("file_id", "file_id is required for telegram jobs").WithField("job_id", d.JobID)
		}
		if d.ChatID == "" {
			return nil, errors.ValidationField("chat_id", "chat_id is required for telegram jobs").WithField("job_id", d.JobID)
		}
		j.Media = Ref{Kind: RefTelegram, Value: strings.TrimSpace(d.FileID)}
	case KindURL:
		if strings.TrimSpace(d.MediaURL) == "" {
			return nil, errors.ValidationField("media_url", "media_url is required for url jobs").WithField("job_id", d.JobID)
		}
		j.Media = refFromURL(d.MediaURL)
	}

	if music := strings.TrimSpace(d.MusicURL); music != "" && kind.AllowsMusic() {
		r := refFromURL(music)
		j.Music = &r
	}

	return j, nil
}

func inferKind(d jobv1.Descriptor) (JobKind, *errors.Error) {
	switch strings.ToLower(strings.TrimSpace(d.Kind)) {
	case jobv1.KindTelegram:
		return KindTelegram, nil
	case jobv1.KindURL:
		return KindURL, nil
	case "":
	default:
		return "", errors.ValidationField("kind", "kind must be telegram or url").WithField("kind", d.Kind)
	}

	switch {
	case strings.TrimSpace(d.FileID) != "":
		return KindTelegram, nil
	case strings.TrimSpace(d.MediaURL) != "":
		return KindURL, nil
	default:
		return "", errors.ValidationField("media", "file_id or media_url is required")
	}
}

func refFromURL(raw string) Ref {
	raw = strings.TrimSpace(raw)
	if key, ok := strings.CutPrefix(raw, storageScheme); ok {
		return Ref{Kind: RefStorage, Value: key}
	}
	return Ref{Kind: RefURL, Value: raw}
}
