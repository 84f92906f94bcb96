// Package models defines the persistent record shapes of the submission
// security layer. Records are created through constructors that validate
// their invariants; handlers never assemble them from ad hoc literals.
package models

import (
	"regexp"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/google/uuid"
)

// Submission is the server-side record of one stored envelope. The
// envelope body itself lives in object storage under StorageKey; this row
// only carries opaque metadata. Immutable once created.
type Submission struct {
	ID         string
	FormID     string
	StorageKey string
	ReceivedAt time.Time
}

var formIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewSubmission mints a submission record for formID with a fresh id and
// object-storage key.
func NewSubmission(formID string) (*Submission, error) {
	if !formIDPattern.MatchString(formID) {
		return nil, common.ErrorValidation
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	return &Submission{
		ID:         id,
		FormID:     formID,
		StorageKey: storageKey(formID, id, now),
		ReceivedAt: now,
	}, nil
}

func storageKey(formID, id string, t time.Time) string {
	return "forms/" + formID + "/" + t.Format("2006/01/02") + "/" + id
}
