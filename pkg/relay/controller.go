package relay

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/quickgpt/pkg/responses"
)

const (
	readChunkSize    = 4096
	maxDocumentBytes = 8 << 20
)

// Settings supplies the credential and default generation parameters.
// An empty key means no credential is configured.
type Settings interface {
	APIKey(ctx context.Context) (string, error)
	Defaults(ctx context.Context) (Params, error)
}

// StartInput describes one request. Empty Params fields fall back to the
// configured defaults and then to the built-in ones.
type StartInput struct {
	Query         string
	Prompt        string
	PromptName    string
	SystemMessage string
	Params        Params
	Surface       string
	ParentID      string
}

// Controller drives requests from registration to a terminal status.
type Controller struct {
	baseCtx context.Context
	ctx     context.Context
	stop    context.CancelFunc

	settings Settings
	client   responses.Client

	store    *Store
	registry *Registry
	cleanup  *Cleanup
	surfaces *Surfaces

	observers  []Observer
	dispatcher *dispatcher
	queueSize  int
	stream     bool
	grace      time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller) error

// WithGraceWindow overrides DefaultGraceWindow.
func WithGraceWindow(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.Errorf("grace window must be positive, got %s", d)
		}
		c.grace = d
		return nil
	}
}

func WithObservers(obs ...Observer) Option {
	return func(c *Controller) error {
		for _, o := range obs {
			if o == nil {
				return errors.New("observer is nil")
			}
			c.observers = append(c.observers, o)
		}
		return nil
	}
}

// WithObserverQueue sets how many messages may wait for observers before
// non-terminal ones are dropped. Defaults to DefaultObserverQueue.
func WithObserverQueue(n int) Option {
	return func(c *Controller) error {
		if n <= 0 {
			return errors.Errorf("observer queue size must be positive, got %d", n)
		}
		c.queueSize = n
		return nil
	}
}

// WithStreaming sets the stream flag sent upstream. Defaults to true.
func WithStreaming(stream bool) Option {
	return func(c *Controller) error {
		c.stream = stream
		return nil
	}
}

func NewController(baseCtx context.Context, settings Settings, client responses.Client, opts ...Option) (*Controller, error) {
	if baseCtx == nil {
		return nil, errors.New("base context is nil")
	}
	if settings == nil {
		return nil, errors.New("settings is nil")
	}
	if client == nil {
		return nil, errors.New("responses client is nil")
	}
	c := &Controller{
		baseCtx:  baseCtx,
		settings: settings,
		client:   client,
		store:    NewStore(),
		registry: NewRegistry(),
		surfaces: NewSurfaces(),
		stream:    true,
		grace:     DefaultGraceWindow,
		queueSize: DefaultObserverQueue,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.ctx, c.stop = context.WithCancel(baseCtx)
	c.cleanup = NewCleanup(c.grace, c.reclaim)
	c.dispatcher = newDispatcher(context.WithoutCancel(baseCtx), c.observers, c.queueSize)
	return c, nil
}

func (c *Controller) Store() *Store       { return c.store }
func (c *Controller) Registry() *Registry { return c.registry }
func (c *Controller) Surfaces() *Surfaces { return c.surfaces }
func (c *Controller) Cleanup() *Cleanup   { return c.cleanup }

// StartRequest registers a pending request and starts driving it in the background.
// A request for a surface that already shows one supersedes it first.
func (c *Controller) StartRequest(ctx context.Context, in StartInput) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", errors.New("controller is closed")
	}
	c.wg.Add(1)
	c.mu.Unlock()

	defaults, err := c.settings.Defaults(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Msg("could not load default parameters, using built-ins")
		defaults = Params{}
	}
	systemMessage := in.SystemMessage
	if strings.TrimSpace(systemMessage) == "" {
		systemMessage = BriefSystemMessage
	}

	id := uuid.NewString()
	rctx, cancel := context.WithCancel(c.ctx)
	e := &entry{
		req: Request{
			ID:            id,
			ParentID:      in.ParentID,
			Surface:       in.Surface,
			Query:         in.Query,
			Prompt:        in.Prompt,
			PromptName:    in.PromptName,
			SystemMessage: systemMessage,
			Params:        in.Params.withFallback(defaults),
			Status:        StatusPending,
			CreatedAt:     time.Now(),
		},
		ctx:    rctx,
		cancel: cancel,
	}

	if prev, ok := c.surfaces.Swap(in.Surface, id); ok {
		if c.Cancel(prev, ReasonReplaced) {
			log.Debug().Str("component", "relay").Str("request_id", prev).Str("surface", in.Surface).Msg("request superseded")
		}
	}
	c.store.insert(e)

	log.Debug().
		Str("component", "relay").
		Str("request_id", id).
		Str("parent_id", in.ParentID).
		Str("surface", in.Surface).
		Str("model", e.req.Params.Model).
		Msg("request registered")

	go c.run(e)
	return id, nil
}

// StartDetail starts a verbose follow-up of parentID with the parent's inputs.
func (c *Controller) StartDetail(ctx context.Context, parentID string) (string, error) {
	resolved, err := c.Resolve(parentID)
	if err != nil {
		return "", err
	}
	parent, ok := c.store.Get(resolved)
	if !ok {
		return "", errors.Wrapf(ErrRequestNotFound, "parent %s", resolved)
	}
	return c.StartRequest(ctx, StartInput{
		Query:         parent.Query,
		Prompt:        parent.Prompt,
		PromptName:    parent.PromptName,
		SystemMessage: VerboseSystemMessage,
		Params:        parent.Params,
		ParentID:      parent.ID,
	})
}

// Cancel aborts a pending or streaming request. It returns false for unknown
// and already finished requests.
func (c *Controller) Cancel(requestID, reason string) bool {
	e, ok := c.store.lookup(requestID)
	if !ok {
		return false
	}
	if strings.TrimSpace(reason) == "" {
		reason = ReasonCancelled
	}
	var accepted bool
	c.react(e, func(e *entry) []Message {
		msgs := abortLocked(e, reason)
		accepted = len(msgs) > 0
		return msgs
	})
	return accepted
}

// Resolve maps LatestRequestID to the most recently created request.
func (c *Controller) Resolve(requestID string) (string, error) {
	if requestID != LatestRequestID {
		return requestID, nil
	}
	id, ok := c.store.Latest()
	if !ok {
		return "", ErrNoActiveRequest
	}
	return id, nil
}

// Subscribe attaches ch to requestID and replays the request's state to it.
// An unresolvable "latest" is reported on ch as a stream-error.
func (c *Controller) Subscribe(requestID string, ch Channel) error {
	if ch == nil {
		return errors.New("channel is nil")
	}
	id, err := c.Resolve(requestID)
	if err != nil {
		if sendErr := ch.Send(ErrorMessage(LatestRequestID, MessageNoActive)); sendErr != nil {
			log.Debug().Err(sendErr).Str("component", "relay").Str("channel_id", ch.ID()).Msg("send failed")
		}
		return err
	}
	e, ok := c.store.lookup(id)
	if !ok {
		c.registry.Attach(id, ch)
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		c.registry.Attach(id, ch)
		return nil
	}
	msgs := replay(e.req)
	if e.req.Status == StatusPending {
		if e.primed == nil {
			e.primed = map[string]struct{}{}
		}
		e.primed[ch.ID()] = struct{}{}
	}
	c.registry.Attach(id, ch, msgs...)
	return nil
}

// Detach forgets ch. The channel's transport calls it when it closes.
func (c *Controller) Detach(ch Channel) {
	c.registry.Detach(ch)
}

// Wait blocks until every running request has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close aborts running requests, waits for them, drains the observer queue and
// stops pending cleanups.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
	c.dispatcher.close()
	c.cleanup.Stop()
}

func (c *Controller) run(e *entry) {
	defer c.wg.Done()
	defer e.cancel()
	ctx := e.ctx

	apiKey, err := c.settings.APIKey(ctx)
	if ctx.Err() != nil {
		c.abort(e, ReasonCancelled)
		return
	}
	if err != nil {
		c.fail(e, err.Error())
		return
	}
	if strings.TrimSpace(apiKey) == "" {
		c.fail(e, MessageMissingAPIKey)
		return
	}

	var req Request
	started := false
	c.react(e, func(e *entry) []Message {
		if e.req.Status != StatusPending {
			return nil
		}
		if e.ctx.Err() != nil {
			return abortLocked(e, ReasonCancelled)
		}
		e.req.Status = StatusStreaming
		req = e.req
		started = true
		return []Message{StartMessage(e.req.ID, e.req.PromptName, e.req.Query)}
	})
	if !started {
		return
	}

	logger := log.With().Str("component", "relay").Str("request_id", req.ID).Logger()
	creq := responses.NewTextRequest(
		req.Params.Model,
		req.SystemMessage,
		req.UserContent(),
		req.Params.MaxTokensValue(),
		c.stream,
	)
	logger.Debug().
		Str("model", creq.Model).
		Int("max_output_tokens", creq.MaxOutputTokens).
		Float64("temperature", req.Params.TemperatureValue()).
		Bool("stream", creq.Stream).
		Msg("calling upstream")

	resp, err := c.client.Create(ctx, apiKey, creq)
	if err != nil {
		if ctx.Err() != nil {
			c.abort(e, ReasonCancelled)
			return
		}
		logger.Warn().Err(err).Msg("upstream call failed")
		c.fail(e, err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.EventStream() {
		c.consumeStream(e, resp.Body)
		return
	}
	c.consumeDocument(e, resp.Body)
}

func (c *Controller) consumeStream(e *entry, body io.Reader) {
	ctx := e.ctx
	dec := responses.NewDecoder()
	buf := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			c.abort(e, ReasonCancelled)
			return
		}
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if stop := c.apply(e, ev); stop {
					return
				}
			}
			if dec.Done() {
				break
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				c.abort(e, ReasonCancelled)
				return
			}
			c.fail(e, err.Error())
			return
		}
	}
	c.finish(e)
}

func (c *Controller) consumeDocument(e *entry, body io.Reader) {
	raw, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes))
	if err != nil {
		if e.ctx.Err() != nil {
			c.abort(e, ReasonCancelled)
			return
		}
		c.fail(e, err.Error())
		return
	}
	events, err := responses.DecodeDocument(raw)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("request_id", e.req.ID).Int("bytes", len(raw)).Msg("could not decode response body")
		c.fail(e, MessageMalformed)
		return
	}
	for _, ev := range events {
		if stop := c.apply(e, ev); stop {
			return
		}
	}
	c.finish(e)
}

// apply folds one decoded event into the request. It returns true when the
// request reached a terminal status and reading must stop.
func (c *Controller) apply(e *entry, ev responses.Event) bool {
	stop := false
	c.react(e, func(e *entry) []Message {
		if e.req.Status.Terminal() {
			stop = true
			return nil
		}
		if e.ctx.Err() != nil {
			stop = true
			return abortLocked(e, ReasonCancelled)
		}
		id := e.req.ID
		switch ev.Kind {
		case responses.EventDelta:
			if e.final {
				return nil
			}
			e.req.Text += ev.Text
			return []Message{DeltaMessage(id, ev.Text, false)}
		case responses.EventItemDone:
			if e.final || e.req.Text != "" {
				return nil
			}
			e.req.Text = ev.Text
			return []Message{DeltaMessage(id, ev.Text, false)}
		case responses.EventFullText:
			e.req.Text = ev.Text
			e.final = true
			return []Message{ReplaceMessage(id, ev.Text)}
		case responses.EventIncomplete:
			stop = true
			return failLocked(e, incompleteMessage(ev.Reason))
		case responses.EventAPIError:
			stop = true
			msg := ev.Message
			if msg == "" {
				msg = MessageFailed
			}
			return failLocked(e, msg)
		}
		return nil
	})
	return stop
}

// finish closes a stream that ended without an explicit terminal event.
func (c *Controller) finish(e *entry) {
	c.react(e, func(e *entry) []Message {
		if e.req.Status.Terminal() {
			return nil
		}
		if e.ctx.Err() != nil {
			return abortLocked(e, ReasonCancelled)
		}
		if e.req.Text == "" {
			return failLocked(e, MessageNoOutput)
		}
		e.req.Status = StatusComplete
		e.req.FinishedAt = time.Now()
		return []Message{CompleteMessage(e.req.ID, e.req.Text)}
	})
}

func (c *Controller) fail(e *entry, msg string) {
	c.react(e, func(e *entry) []Message {
		return failLocked(e, msg)
	})
}

func (c *Controller) abort(e *entry, reason string) {
	c.react(e, func(e *entry) []Message {
		return abortLocked(e, reason)
	})
}

func failLocked(e *entry, msg string) []Message {
	if e.req.Status.Terminal() {
		return nil
	}
	e.req.Status = StatusError
	e.req.Error = msg
	e.req.FinishedAt = time.Now()
	return []Message{ErrorMessage(e.req.ID, msg)}
}

func abortLocked(e *entry, reason string) []Message {
	if e.req.Status.Terminal() {
		return nil
	}
	e.req.Status = StatusAborted
	e.req.AbortReason = reason
	e.req.FinishedAt = time.Now()
	if e.cancel != nil {
		e.cancel()
	}
	return []Message{AbortMessage(e.req.ID, reason)}
}

// react runs fn under the request lock, then broadcasts and queues for the
// observers what it returns before unlocking. Cleanup arming follows after the
// lock is released. Channels that already got a start on attach are skipped
// for the live one.
func (c *Controller) react(e *entry, fn func(e *entry) []Message) {
	e.mu.Lock()
	msgs := fn(e)
	snapshot := e.req
	for _, msg := range msgs {
		if msg.Type == TypeStreamStart {
			c.registry.BroadcastExcept(e.req.ID, msg, e.primed)
			e.primed = nil
		} else {
			c.registry.Broadcast(e.req.ID, msg)
		}
		c.dispatcher.enqueue(snapshot, msg)
	}
	e.mu.Unlock()

	for _, msg := range msgs {
		if msg.Type.Terminal() {
			log.Debug().
				Str("component", "relay").
				Str("request_id", snapshot.ID).
				Str("status", string(snapshot.Status)).
				Int("text_len", len(snapshot.Text)).
				Msg("request finished")
			c.cleanup.Arm(snapshot.ID)
		}
	}
}

// reclaim is the cleanup callback: it forgets the request everywhere.
func (c *Controller) reclaim(requestID string) {
	e, ok := c.store.remove(requestID)
	if !ok {
		c.registry.drop(requestID)
		return
	}
	e.mu.Lock()
	e.gone = true
	surface := e.req.Surface
	c.registry.drop(requestID)
	e.mu.Unlock()

	c.surfaces.Release(surface, requestID)
	if e.cancel != nil {
		e.cancel()
	}
}

// replay is what a channel attaching to req receives. A pending request replays
// only its start.
func replay(req Request) []Message {
	msgs := []Message{StartMessage(req.ID, req.PromptName, req.Query)}
	if req.Text != "" {
		msgs = append(msgs, DeltaMessage(req.ID, req.Text, true))
	}
	switch req.Status {
	case StatusComplete:
		msgs = append(msgs, CompleteMessage(req.ID, req.Text))
	case StatusError:
		errMsg := req.Error
		if errMsg == "" {
			errMsg = MessageFailed
		}
		msgs = append(msgs, ErrorMessage(req.ID, errMsg))
	case StatusAborted:
		reason := req.AbortReason
		if reason == "" {
			reason = ReasonCancelled
		}
		msgs = append(msgs, AbortMessage(req.ID, reason))
	}
	return msgs
}
