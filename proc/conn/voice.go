package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/minstrel/sys"
)

const joinAttempts = 5

var ErrNotConnected = errors.New("not connected to voice")

// Voice owns the bot's voice connections. It answers voice-state questions
// from the gateway cache, opens and closes connections and hands frame
// providers to an open connection.
type Voice struct {
	client *bot.Client

	mu    sync.Mutex
	conns map[snowflake.ID]*session
}

type session struct {
	conn      voice.Conn
	channelID snowflake.ID
}

func NewVoice(client *bot.Client) *Voice {
	return &Voice{
		client: client,
		conns:  make(map[snowflake.ID]*session),
	}
}

func (v *Voice) UserChannel(guildID, userID snowflake.ID) (snowflake.ID, bool) {
	vs, ok := v.client.Caches.VoiceState(guildID, userID)
	if !ok || vs.ChannelID == nil {
		return 0, false
	}
	return *vs.ChannelID, true
}

// BotChannel prefers the connection this process opened and falls back to the
// gateway's view of the bot's own voice state.
func (v *Voice) BotChannel(guildID snowflake.ID) (snowflake.ID, bool) {
	v.mu.Lock()
	sess, ok := v.conns[guildID]
	v.mu.Unlock()
	if ok {
		return sess.channelID, true
	}
	return v.UserChannel(guildID, v.client.ID())
}

func (v *Voice) ChannelExists(_ snowflake.ID, channelID snowflake.ID) bool {
	_, ok := v.client.Caches.Channel(channelID)
	return ok
}

// Join opens a connection to channelID, retrying with exponential backoff.
func (v *Voice) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	v.mu.Lock()
	if sess, ok := v.conns[guildID]; ok && sess.channelID == channelID {
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()

	conn := v.client.VoiceManager.CreateConn(guildID)

	var err error
	for i := range joinAttempts {
		if i > 0 {
			wait := time.Duration(1<<(i-1)) * time.Second
			sys.LogVoice(sys.MsgVoiceJoinRetry, wait, i+1, joinAttempts)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				conn.Close(context.Background())
				return ctx.Err()
			}
		}
		if err = conn.Open(ctx, channelID, false, false); err == nil {
			break
		}
	}
	if err != nil {
		sys.LogVoice(sys.MsgVoiceJoinFail, guildID, joinAttempts, err)
		conn.Close(context.Background())
		return err
	}

	v.mu.Lock()
	old := v.conns[guildID]
	v.conns[guildID] = &session{conn: conn, channelID: channelID}
	v.mu.Unlock()
	if old != nil && old.conn != conn {
		old.conn.Close(ctx)
	}
	return nil
}

func (v *Voice) Leave(ctx context.Context, guildID snowflake.ID) {
	v.mu.Lock()
	sess, ok := v.conns[guildID]
	delete(v.conns, guildID)
	v.mu.Unlock()
	if !ok {
		return
	}

	v.setProvider(sess.conn, nil)
	sess.conn.Close(ctx)
	sys.LogVoice(sys.MsgVoiceLeft, guildID)
}

// Forget drops the record of a connection the platform already closed.
func (v *Voice) Forget(guildID snowflake.ID) {
	v.mu.Lock()
	delete(v.conns, guildID)
	v.mu.Unlock()
}

// Moved updates the recorded channel of an open connection.
func (v *Voice) Moved(guildID, channelID snowflake.ID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if sess, ok := v.conns[guildID]; ok {
		sess.channelID = channelID
	}
}

func (v *Voice) Connected(guildID snowflake.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.conns[guildID]
	return ok
}

// Attach starts sending frames from p on the guild's connection.
func (v *Voice) Attach(ctx context.Context, guildID snowflake.ID, p voice.OpusFrameProvider) error {
	v.mu.Lock()
	sess, ok := v.conns[guildID]
	v.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	v.setProvider(sess.conn, p)
	return sess.conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone)
}

// Detach stops sending frames. It is safe on a guild with no connection.
func (v *Voice) Detach(ctx context.Context, guildID snowflake.ID) {
	v.mu.Lock()
	sess, ok := v.conns[guildID]
	v.mu.Unlock()
	if !ok {
		return
	}

	v.setProvider(sess.conn, nil)
	_ = sess.conn.SetSpeaking(ctx, 0)
}

func (v *Voice) setProvider(conn voice.Conn, p voice.OpusFrameProvider) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice(sys.MsgLoaderPanicRecovered, r)
		}
	}()
	conn.SetOpusFrameProvider(p)
}
