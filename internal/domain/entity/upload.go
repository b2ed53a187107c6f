package entity

import "time"

// UploadTarget addresses the destination folder of one request in the document library.
type UploadTarget struct {
	SiteURL   string
	Library   string
	Folder    string
	Overwrite bool
}

// NewUploadTarget builds a target for the request's folder. Overwrite is always on so
// re-running the pipeline replaces files instead of failing or duplicating them.
func NewUploadTarget(siteURL, library, requestID string) UploadTarget {
	return UploadTarget{
		SiteURL:   siteURL,
		Library:   library,
		Folder:    requestID,
		Overwrite: true,
	}
}

// AtLibraryRoot returns a copy of the target pointing at the library root folder.
func (t UploadTarget) AtLibraryRoot() UploadTarget {
	t.Folder = ""
	return t
}

// Folder is a resolved folder of the document library
type Folder struct {
	Name              string `json:"Name"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
}

// ArchiveStatus is the outcome of the repository stage.
type ArchiveStatus string

const (
	ArchiveStatusArchived    ArchiveStatus = "archived"
	ArchiveStatusPartial     ArchiveStatus = "partial"
	ArchiveStatusFailed      ArchiveStatus = "failed"
	ArchiveStatusNothingToDo ArchiveStatus = "nothing_to_do"
	ArchiveStatusDisabled    ArchiveStatus = "disabled"
)

// ArchiveOutcome reports what the repository stage did for one request.
type ArchiveOutcome struct {
	RunID         string        `json:"run_id"`
	RequestID     string        `json:"request_id"`
	RequestStatus RequestStatus `json:"request_status"`
	Status        ArchiveStatus `json:"status"`
	Strategy      string        `json:"strategy,omitempty"`
	Folder        string        `json:"folder,omitempty"`
	Uploaded      []string      `json:"uploaded,omitempty"`
	Failed        []string      `json:"failed,omitempty"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// ArchiveRun is a persisted ArchiveOutcome
type ArchiveRun struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	RequestID     string    `json:"request_id"`
	RequestStatus string    `json:"request_status"`
	Status        string    `json:"status"`
	Strategy      string    `json:"strategy"`
	Uploaded      int       `json:"uploaded"`
	Failed        int       `json:"failed"`
	CreatedAt     time.Time `json:"created_at"`
}
