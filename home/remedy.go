package home

import (
	"errors"

	"github.com/leeineian/minstrel/proc/conn"
	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/proc/player"
	"github.com/leeineian/minstrel/proc/search"
	"github.com/leeineian/minstrel/proc/sleep"
	"github.com/leeineian/minstrel/proc/titles"
	"github.com/leeineian/minstrel/sys"
)

// Remedy maps an error from any subsystem to the text shown to the user.
func Remedy(err error) string {
	var joinErr *conn.JoinError
	switch {
	case err == nil:
		return ""

	// user input
	case errors.Is(err, errInvalidInput),
		errors.Is(err, search.ErrNoResults),
		errors.Is(err, titles.ErrEmptyTitle):
		return sys.ErrUserInvalidInput
	case errors.Is(err, player.ErrQueueEmpty):
		return sys.ErrUserQueueEmpty
	case errors.Is(err, titles.ErrTitleAlreadyUsed):
		return sys.ErrUserTitleUsed
	case errors.Is(err, titles.ErrTitleNotFound):
		return sys.ErrUserTitleNotFound
	case errors.Is(err, sleep.ErrUnparsable):
		return sys.ErrUserSleepParse
	case errors.Is(err, sleep.ErrInPast):
		return sys.ErrUserSleepPast

	// connection
	case errors.Is(err, conn.ErrJoinVoiceChannelFirst):
		return sys.ErrUserJoinFirst
	case errors.Is(err, conn.ErrAlreadyInUse):
		return sys.ErrUserAlreadyInUse
	case errors.Is(err, conn.ErrVoiceChannelNotFound):
		return sys.ErrUserChannelNotFound
	case errors.As(err, &joinErr):
		return sys.ErrUserJoinFailed

	// contention
	case errors.Is(err, player.ErrBusy):
		return sys.ErrUserBusy
	case errors.Is(err, player.ErrAlreadyPlaying):
		return sys.ErrUserAlreadyPlaying

	// acquisition
	case pipeline.KindOf(err) != 0:
		return sys.ErrUserAcquireFailed
	}
	return sys.ErrUserGeneric
}
