package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSenderRoleOther(t *testing.T) {
	assert.Equal(t, RoleRecruiter, RoleApplicant.Other())
	assert.Equal(t, RoleApplicant, RoleRecruiter.Other())
}

func TestMessageValidate(t *testing.T) {
	valid := Message{
		ConversationID: "conv-1",
		SenderID:       "user-1",
		SenderRole:     RoleApplicant,
		Kind:           KindText,
		Body:           "hello",
	}
	assert.NoError(t, valid.Validate())

	missingIDs := valid
	missingIDs.ConversationID = ""
	assert.Error(t, missingIDs.Validate())

	blank := valid
	blank.Body = "  \n "
	assert.ErrorIs(t, blank.Validate(), ErrEmptyBody)

	audio := valid
	audio.Kind = KindAudio
	audio.Body = ""
	assert.Error(t, audio.Validate(), "audio without url rejected")
	audio.AudioURL = "/audio/m1.webm"
	assert.NoError(t, audio.Validate())

	unknown := valid
	unknown.Kind = "video"
	assert.Error(t, unknown.Validate())
}
