package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

var errTextToMedia = errors.New("a text message cannot gain media")

type Renderer struct {
	backend      Backend
	log          *zap.Logger
	defaultImage string

	mu     sync.Mutex
	states map[domain.ConversationID]State
	locks  map[domain.ConversationID]*sync.Mutex
}

// NewRenderer builds a renderer. defaultImage is shown behind caption-only
// screens when no message exists yet; empty means plain text.
func NewRenderer(backend Backend, defaultImage string, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		backend:      backend,
		log:          log,
		defaultImage: defaultImage,
		states:       map[domain.ConversationID]State{},
		locks:        map[domain.ConversationID]*sync.Mutex{},
	}
}

func (r *Renderer) lock(conv domain.ConversationID) func() {
	r.mu.Lock()
	l, ok := r.locks[conv]
	if !ok {
		l = &sync.Mutex{}
		r.locks[conv] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (r *Renderer) State(conv domain.ConversationID) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[conv]
}

func (r *Renderer) setState(conv domain.ConversationID, st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !st.Live() {
		delete(r.states, conv)
		return
	}
	r.states[conv] = st
}

// Render shows content as the conversation's live message. It edits in place
// when possible, otherwise replaces the message. It fails only when no
// message could be shown at all, with an error wrapping domain.ErrNoPresentation.
func (r *Renderer) Render(ctx context.Context, conv domain.ConversationID, content Content, menu Menu) error {
	defer r.lock(conv)()
	return r.render(ctx, conv, content, menu)
}

// RenderCaptionOnly changes only the caption and menu of the live message.
// Without a live message it renders the default image with the caption.
func (r *Renderer) RenderCaptionOnly(ctx context.Context, conv domain.ConversationID, caption string, menu Menu) error {
	defer r.lock(conv)()

	st := r.State(conv)
	if !st.Live() {
		return r.render(ctx, conv, r.fallback(caption), menu)
	}
	var err error
	if st.Kind == KindText {
		err = r.backend.EditText(ctx, conv, st.MessageID, caption, menu)
	} else {
		err = r.backend.EditCaption(ctx, conv, st.MessageID, caption, menu)
	}
	if err == nil {
		return nil
	}
	r.log.Debug("caption edit failed, replacing message",
		zap.Int64("conversation_id", int64(conv)), zap.Int("message_id", int(st.MessageID)), zap.Error(err))
	r.discard(ctx, conv, st)
	return r.render(ctx, conv, r.fallback(caption), menu)
}

// Forget deletes the live message, best effort, and resets the state.
func (r *Renderer) Forget(ctx context.Context, conv domain.ConversationID) {
	defer r.lock(conv)()
	if st := r.State(conv); st.Live() {
		r.discard(ctx, conv, st)
	}
}

func (r *Renderer) fallback(caption string) Content {
	if r.defaultImage == "" {
		return Text(caption)
	}
	return Image(r.defaultImage, caption)
}

func (r *Renderer) render(ctx context.Context, conv domain.ConversationID, content Content, menu Menu) error {
	st := r.State(conv)
	if st.Live() {
		kind, err := r.edit(ctx, conv, st, content, menu)
		if err == nil {
			r.setState(conv, State{MessageID: st.MessageID, Kind: kind})
			return nil
		}
		r.log.Debug("in-place edit failed, replacing message",
			zap.Int64("conversation_id", int64(conv)),
			zap.Int("message_id", int(st.MessageID)),
			zap.Stringer("live_kind", st.Kind),
			zap.Error(err))
		r.discard(ctx, conv, st)
	}
	return r.send(ctx, conv, content, menu)
}

// edit returns the kind the live message has after a successful edit.
func (r *Renderer) edit(ctx context.Context, conv domain.ConversationID, st State, content Content, menu Menu) (Kind, error) {
	if content.Media == nil {
		if st.Kind == KindText {
			return KindText, r.backend.EditText(ctx, conv, st.MessageID, content.Caption, menu)
		}
		return st.Kind, r.backend.EditCaption(ctx, conv, st.MessageID, content.Caption, menu)
	}
	if st.Kind == KindText {
		return st.Kind, errTextToMedia
	}
	return content.Media.Kind, r.backend.EditMedia(ctx, conv, st.MessageID, *content.Media, content.Caption, menu)
}

// discard deletes the stale message and clears the state. Delete errors are
// ignored: the message may already be gone.
func (r *Renderer) discard(ctx context.Context, conv domain.ConversationID, st State) {
	if err := r.backend.Delete(ctx, conv, st.MessageID); err != nil {
		r.log.Debug("delete of stale message failed",
			zap.Int64("conversation_id", int64(conv)), zap.Int("message_id", int(st.MessageID)), zap.Error(err))
	}
	r.setState(conv, State{})
}

func (r *Renderer) send(ctx context.Context, conv domain.ConversationID, content Content, menu Menu) error {
	var (
		id   MessageID
		kind Kind
		err  error
	)
	switch {
	case content.Media == nil:
		kind = KindText
		id, err = r.backend.SendText(ctx, conv, content.Caption, menu)
	case content.Media.Kind == KindVideo:
		kind = KindVideo
		id, err = r.backend.SendVideo(ctx, conv, content.Media.Ref, content.Caption, menu)
	default:
		kind = KindImage
		id, err = r.backend.SendPhoto(ctx, conv, content.Media.Ref, content.Caption, menu)
	}
	if err != nil {
		r.log.Warn("send failed, conversation has no live message",
			zap.Int64("conversation_id", int64(conv)), zap.Stringer("kind", kind), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrNoPresentation, err)
	}
	r.setState(conv, State{MessageID: id, Kind: kind})
	return nil
}
