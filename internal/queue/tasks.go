package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const TaskVideoEncode = "video:encode"

// EncodePayload is the job descriptor published by the backend when a raw
// upload finishes. VideoID and GCSURI are required; everything else is
// carried through into the output object paths.
type EncodePayload struct {
	VideoID   string `json:"videoId"`
	CourseID  string `json:"courseId"`
	AdminID   string `json:"adminId"`
	GCSURI    string `json:"gcsUri"`
	Timestamp string `json:"timestamp,omitempty"`
}

// MalformedJobError marks a message that can never become processable.
// The intake drops such messages without redelivery.
type MalformedJobError struct {
	Reason string
}

func (e *MalformedJobError) Error() string {
	return "malformed job: " + e.Reason
}

func NewEncodeTask(p EncodePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVideoEncode, b), nil
}

// Decode parses a raw task payload and enforces the required fields.
func Decode(data []byte) (EncodePayload, error) {
	var p EncodePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return EncodePayload{}, &MalformedJobError{Reason: err.Error()}
	}
	if strings.TrimSpace(p.VideoID) == "" {
		return EncodePayload{}, &MalformedJobError{Reason: "missing videoId"}
	}
	if strings.TrimSpace(p.GCSURI) == "" {
		return EncodePayload{}, &MalformedJobError{Reason: "missing gcsUri"}
	}
	return p, nil
}

// SourceObjectKey extracts the object key from a source URI. The backend
// publishes gs:// URIs; bare keys are accepted for operator republish.
func (p EncodePayload) SourceObjectKey(sourceBucket string) (string, error) {
	uri := strings.TrimSpace(p.GCSURI)
	for _, scheme := range []string{"gs://", "s3://"} {
		if strings.HasPrefix(uri, scheme) {
			rest := strings.TrimPrefix(uri, scheme)
			bucket, key, ok := strings.Cut(rest, "/")
			if !ok || key == "" {
				return "", fmt.Errorf("source uri %q has no object key", p.GCSURI)
			}
			if sourceBucket != "" && bucket != sourceBucket {
				return "", fmt.Errorf("source uri bucket %q does not match configured bucket %q", bucket, sourceBucket)
			}
			return key, nil
		}
	}
	return uri, nil
}

// RemotePrefix is the public-bucket root for this job's output tree.
func (p EncodePayload) RemotePrefix() string {
	return fmt.Sprintf("assets/%s/%s/%s", p.AdminID, p.CourseID, p.VideoID)
}
