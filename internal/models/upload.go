package models

import "strings"

// InputKind is the shape of a review input.
type InputKind string

const (
	InputSingle    InputKind = "single"
	InputMultiple  InputKind = "multiple"
	InputArchive   InputKind = "archive"
	InputDirectory InputKind = "directory"
	InputChanged   InputKind = "changed"
)

// BlobsKind classifies a set of uploaded blobs.
func BlobsKind(blobs []Blob) InputKind {
	if len(blobs) == 1 {
		return InputSingle
	}
	return InputMultiple
}

// Blob is one named byte payload supplied by a caller.
type Blob struct {
	Name string
	Data []byte
}

// UploadCandidate is a file discovered in an upload, before filtering.
type UploadCandidate struct {
	DisplayName  string
	RelativePath string
	RawBytes     []byte
}

// ReviewTarget is the decoded input to one reviewer call.
type ReviewTarget struct {
	Filename string
	FilePath string
	Code     string
}

// Target decodes the candidate's bytes. Invalid UTF-8 sequences are dropped.
func (c UploadCandidate) Target() ReviewTarget {
	return ReviewTarget{
		Filename: c.DisplayName,
		FilePath: c.RelativePath,
		Code:     strings.ToValidUTF8(string(c.RawBytes), ""),
	}
}
