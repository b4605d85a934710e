package dataset

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/address-helper/internal/model"
)

// Prepare validates cs and stamps its ID and CreatedAt when unset.
func Prepare(cs *model.Changeset) error {
	if cs == nil {
		return eris.New("dataset: nil changeset")
	}
	for i, ch := range cs.Changes {
		if ch.PrimitiveID == "" || ch.Key == "" {
			return eris.Errorf("dataset: change %d: primitive id and key are required", i)
		}
	}
	if cs.ID == "" {
		cs.ID = uuid.New().String()
	}
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Apply writes ch into tags and records the value it replaced.
func Apply(tags model.Tags, ch *model.TagChange) {
	if prev, ok := tags[ch.Key]; ok {
		ch.Previous = &prev
	} else {
		ch.Previous = nil
	}
	tags[ch.Key] = ch.Value
}

// Revert restores the value recorded by Apply.
func Revert(tags model.Tags, ch model.TagChange) {
	if ch.Previous == nil {
		delete(tags, ch.Key)
		return
	}
	tags[ch.Key] = *ch.Previous
}
