package entity

import "fmt"

// DocumentKind selects which artifact of a completed request is retrieved.
type DocumentKind struct {
	name       string
	documentID string
}

var (
	// KindCombined is every document of the request merged into a single PDF.
	KindCombined = DocumentKind{name: "combined"}
	// KindCertificate is the certificate of completion.
	KindCertificate = DocumentKind{name: "certificate"}
)

// KindSingle selects one document of the request by its provider document id.
func KindSingle(documentID string) DocumentKind {
	return DocumentKind{name: "single", documentID: documentID}
}

// DocumentID is the path segment the provider expects for this kind.
func (k DocumentKind) DocumentID() string {
	if k.name == "single" {
		return k.documentID
	}
	return k.name
}

func (k DocumentKind) String() string {
	if k.name == "single" {
		return "single:" + k.documentID
	}
	return k.name
}

// FileName derives the stored file name from the owning request id.
func (k DocumentKind) FileName(requestID string) string {
	switch k.name {
	case "combined":
		return requestID + ".pdf"
	case "certificate":
		return "COC_" + requestID + ".pdf"
	default:
		return fmt.Sprintf("%s_%s.pdf", requestID, k.documentID)
	}
}

// DocumentArtifact is a binary document fetched from a completed request. Immutable once fetched.
type DocumentArtifact struct {
	RequestID string
	Kind      DocumentKind
	FileName  string
	Content   []byte
}

// EnvelopeDocument is one entry of a request's document list
type EnvelopeDocument struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Order      string `json:"order"`
}
