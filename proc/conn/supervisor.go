// Package conn decides whether a command may use the bot's voice connection
// and joins or leaves voice channels on behalf of a guild.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/sys"
)

var (
	ErrJoinVoiceChannelFirst = errors.New("user is not in a voice channel")
	ErrAlreadyInUse          = errors.New("bot is connected to another voice channel")
	ErrVoiceChannelNotFound  = errors.New("bot voice channel not found")
)

// JoinError wraps a platform failure to open a voice connection.
type JoinError struct {
	ChannelID snowflake.ID
	Err       error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join voice channel %s: %v", e.ChannelID, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

type Outcome int

const (
	NewConnection Outcome = iota
	AlreadyConnected
)

func (o Outcome) String() string {
	if o == AlreadyConnected {
		return "already connected"
	}
	return "new connection"
}

// VoiceStates answers who is in which voice channel.
type VoiceStates interface {
	UserChannel(guildID, userID snowflake.ID) (snowflake.ID, bool)
	BotChannel(guildID snowflake.ID) (snowflake.ID, bool)
	ChannelExists(guildID, channelID snowflake.ID) bool
}

type Joiner interface {
	Join(ctx context.Context, guildID, channelID snowflake.ID) error
	// Leave closes the guild's connection; it is a no-op when there is none.
	Leave(ctx context.Context, guildID snowflake.ID)
	// Connected reports whether this process holds an open connection.
	Connected(guildID snowflake.ID) bool
}

// Halter stops playback for a guild without advancing its queue.
type Halter interface {
	Halt(ctx context.Context, guildID snowflake.ID)
}

type Supervisor struct {
	states   VoiceStates
	joiner   Joiner
	registry *guild.Registry
	halter   Halter

	// ClearQueueOnDisconnect drops pending entries on Terminate.
	ClearQueueOnDisconnect bool

	mu    sync.Mutex
	locks map[snowflake.ID]*sync.Mutex
}

func NewSupervisor(states VoiceStates, joiner Joiner, registry *guild.Registry, halter Halter) *Supervisor {
	return &Supervisor{
		states:   states,
		joiner:   joiner,
		registry: registry,
		halter:   halter,
		locks:    make(map[snowflake.ID]*sync.Mutex),
	}
}

func (s *Supervisor) guildLock(gid snowflake.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[gid]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gid] = l
	}
	return l
}

// Establish makes sure the bot shares userID's voice channel in gid and binds
// the guild to that voice channel and textChannel.
//
//	bot in voice | user in voice | same channel | result
//	no           | no            |              | ErrJoinVoiceChannelFirst
//	no           | yes           |              | join, NewConnection
//	yes          | yes           | yes          | AlreadyConnected
//	yes          | yes           | no           | ErrAlreadyInUse
//	yes          | no            |              | ErrJoinVoiceChannelFirst
//
// "bot in voice" means a connection this process owns. A voice state seen
// only on the gateway (left over from a restart or a leave still in flight)
// counts as not in voice, so the bot joins the user's channel again.
func (s *Supervisor) Establish(ctx context.Context, gid, userID, textChannel snowflake.ID) (Outcome, error) {
	l := s.guildLock(gid)
	l.Lock()
	defer l.Unlock()

	userCh, userIn := s.states.UserChannel(gid, userID)
	botCh, botIn := s.states.BotChannel(gid)
	if botIn && !s.joiner.Connected(gid) {
		sys.LogVoice(sys.MsgVoiceStaleState, botCh, gid)
		botIn = false
	}

	if !userIn {
		return 0, ErrJoinVoiceChannelFirst
	}

	st := s.registry.Get(gid)
	if botIn {
		if !s.states.ChannelExists(gid, botCh) {
			return 0, ErrVoiceChannelNotFound
		}
		if botCh != userCh {
			return 0, ErrAlreadyInUse
		}
		st.SetChannels(botCh, textChannel)
		return AlreadyConnected, nil
	}

	sys.LogVoice(sys.MsgVoiceJoining, userCh, gid)
	if err := s.joiner.Join(ctx, gid, userCh); err != nil {
		return 0, &JoinError{ChannelID: userCh, Err: err}
	}
	st.SetChannels(userCh, textChannel)
	return NewConnection, nil
}

// Terminate stops playback, leaves voice and unbinds the guild's channels.
// Terminating a guild that is not connected does nothing harmful.
func (s *Supervisor) Terminate(ctx context.Context, gid snowflake.ID) {
	l := s.guildLock(gid)
	l.Lock()
	defer l.Unlock()

	if s.halter != nil {
		s.halter.Halt(ctx, gid)
	}
	s.joiner.Leave(ctx, gid)

	if st, ok := s.registry.Lookup(gid); ok {
		st.ClearChannels()
		if s.ClearQueueOnDisconnect {
			st.ClearPending()
		}
	}
}

// Moved records that the bot now sits in channelID, e.g. after a moderator
// dragged it.
func (s *Supervisor) Moved(gid, channelID snowflake.ID) {
	st, ok := s.registry.Lookup(gid)
	if !ok {
		return
	}
	voice, text := st.Channels()
	if voice != 0 && voice != channelID {
		st.SetChannels(channelID, text)
	}
}
