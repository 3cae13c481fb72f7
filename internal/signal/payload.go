package signal

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Description and candidate payloads travel base64-encoded so the
// messaging transport never has to care about their structure.

type descriptionPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// EncodeDescription packs a session description into an opaque payload.
func EncodeDescription(desc webrtc.SessionDescription) (string, error) {
	raw, err := json.Marshal(descriptionPayload{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeDescription unpacks an opaque payload into a session description.
// An empty SDP or unparseable type is a validation failure.
func DecodeDescription(payload string) (webrtc.SessionDescription, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return webrtc.SessionDescription{}, ErrBadPayload
	}
	var p descriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return webrtc.SessionDescription{}, ErrBadPayload
	}
	if p.SDP == "" {
		return webrtc.SessionDescription{}, ErrBadPayload
	}
	switch p.Type {
	case "offer", "answer", "pranswer", "rollback":
	default:
		return webrtc.SessionDescription{}, ErrBadPayload
	}
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(p.Type), SDP: p.SDP}, nil
}

// EncodeCandidates packs a batch of ICE candidates into one payload.
func EncodeCandidates(candidates []webrtc.ICECandidateInit) (string, error) {
	batch := make([]candidatePayload, 0, len(candidates))
	for _, c := range candidates {
		batch = append(batch, candidatePayload{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		})
	}
	raw, err := json.Marshal(batch)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeCandidates unpacks a candidate batch, preserving arrival order.
func DecodeCandidates(payload string) ([]webrtc.ICECandidateInit, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrBadPayload
	}
	var batch []candidatePayload
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, ErrBadPayload
	}
	out := make([]webrtc.ICECandidateInit, 0, len(batch))
	for _, p := range batch {
		if p.Candidate == "" {
			return nil, ErrBadPayload
		}
		out = append(out, webrtc.ICECandidateInit{
			Candidate:     p.Candidate,
			SDPMid:        p.SDPMid,
			SDPMLineIndex: p.SDPMLineIndex,
		})
	}
	return out, nil
}
