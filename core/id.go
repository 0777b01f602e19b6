package core

import (
	"github.com/google/uuid"

	"pkt.systems/companion/schema"
)

func newSubmissionID() schema.SubmissionID {
	return schema.SubmissionID(uuid.NewString())
}
