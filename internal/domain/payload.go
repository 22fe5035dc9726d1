package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxTextLength bounds free-text payload fields.
const MaxTextLength = 50000

// AnalyzePayload asks the generation backend to score a resume against a job description.
type AnalyzePayload struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
}

// GenerateResumePayload asks the generation backend for a tailored resume document.
type GenerateResumePayload struct {
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
	Tone           string `json:"tone,omitempty"`
}

// GeneratePDFPayload asks the document renderer for a PDF of a resume document.
type GeneratePDFPayload struct {
	Resume   json.RawMessage `json:"resume"`
	Template string          `json:"template,omitempty"`
}

// DecodePayload strictly decodes raw into dst.
func DecodePayload(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}
	return nil
}

// ValidatePayload checks that raw is a well-formed payload for t.
func ValidatePayload(t JobType, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return NewValidationError("payload", "payload is required")
	}

	switch t {
	case JobTypeAnalyze:
		var p AnalyzePayload
		if err := DecodePayload(raw, &p); err != nil {
			return err
		}
		return validateTexts(p.ResumeText, p.JobDescription)

	case JobTypeGenerateResume:
		var p GenerateResumePayload
		if err := DecodePayload(raw, &p); err != nil {
			return err
		}
		return validateTexts(p.ResumeText, p.JobDescription)

	case JobTypeGeneratePDF:
		var p GeneratePDFPayload
		if err := DecodePayload(raw, &p); err != nil {
			return err
		}
		trimmed := bytes.TrimSpace(p.Resume)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return NewValidationError("payload.resume", "resume must be a JSON object")
		}
		return nil
	}

	return NewValidationError("type", fmt.Sprintf("unknown job type %q", t))
}

func validateTexts(resume, description string) error {
	if strings.TrimSpace(resume) == "" {
		return NewValidationError("payload.resume_text", "resume_text is required")
	}
	if strings.TrimSpace(description) == "" {
		return NewValidationError("payload.job_description", "job_description is required")
	}
	if len(resume) > MaxTextLength {
		return NewValidationError("payload.resume_text", fmt.Sprintf("must be at most %d characters", MaxTextLength))
	}
	if len(description) > MaxTextLength {
		return NewValidationError("payload.job_description", fmt.Sprintf("must be at most %d characters", MaxTextLength))
	}
	return nil
}
