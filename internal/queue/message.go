package queue

import "encoding/json"

// Message is the job description handed to the analysis worker.
type Message struct {
	TaskID      string `json:"taskId"`
	RepoURL     string `json:"repoUrl"`
	PRNumber    int    `json:"prNumber"`
	GitHubToken string `json:"githubToken,omitempty"`
	RequestID   string `json:"requestId"`
	EnqueuedAt  string `json:"enqueuedAt"`
	Version     int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
