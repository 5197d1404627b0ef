package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ChiragPatelK/PyRunX/internal/botmsg"
	"github.com/ChiragPatelK/PyRunX/internal/inputscan"
	"github.com/ChiragPatelK/PyRunX/internal/runner"
	"github.com/ChiragPatelK/PyRunX/internal/session"
	"github.com/ChiragPatelK/PyRunX/internal/telegram"
)

type sendFunc func(ctx context.Context, chatID int64, text string) error

// dispatcherDeps carries everything the dispatcher touches, so tests can
// drive the conversation with fakes.
type dispatcherDeps struct {
	Logger      *slog.Logger
	Msgs        botmsg.Catalog
	Send        sendFunc
	SendChunked sendFunc
	Typing      func(ctx context.Context, chatID int64) func()
	Run         func(ctx context.Context, source string, inputs []string) (runner.Result, error)

	RunTimeout     time.Duration
	MaxOutputChars int
	MaxConcurrency int
	AllowedChatIDs map[int64]bool

	// AfterRun is called once a run's reply has been delivered and the
	// session released. Tests use it to synchronize; nil in production.
	AfterRun func(userID int64)
}

// dispatcher routes one incoming message at a time. Collector transitions
// happen inline; executions are handed to per-chat workers so one user's
// run never blocks another user's conversation or the poll loop.
type dispatcher struct {
	deps     dispatcherDeps
	registry *session.Registry

	ctx     context.Context
	mu      sync.Mutex
	workers map[int64]*chatWorker
	sem     chan struct{}
}

type chatWorker struct {
	jobs chan execJob
}

type execJob struct {
	sessionID string
	userID    int64
	chatID    int64
	source    string
	inputs    []string
}

func newDispatcher(ctx context.Context, deps dispatcherDeps) *dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxConcurrency <= 0 {
		deps.MaxConcurrency = 3
	}
	if deps.Typing == nil {
		deps.Typing = func(context.Context, int64) func() { return func() {} }
	}
	return &dispatcher{
		deps:     deps,
		registry: session.NewRegistry(),
		ctx:      ctx,
		workers:  make(map[int64]*chatWorker),
		sem:      make(chan struct{}, deps.MaxConcurrency),
	}
}

func (d *dispatcher) HandleMessage(ctx context.Context, msg *telegram.Message) {
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}
	chatID := msg.Chat.ID
	userID := chatID
	if msg.From != nil {
		userID = msg.From.ID
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if len(d.deps.AllowedChatIDs) > 0 && !d.deps.AllowedChatIDs[chatID] {
		d.deps.Logger.Warn("unauthorized_chat", "chat_id", chatID)
		d.reply(ctx, chatID, d.deps.Msgs.Unauthorized)
		return
	}

	cmdWord, _ := splitCommand(text)
	switch normalizeSlashCommand(cmdWord) {
	case "/start":
		d.reply(ctx, chatID, d.deps.Msgs.Greeting)
	case "/help":
		d.reply(ctx, chatID, d.deps.Msgs.HelpText(d.deps.RunTimeout))
	case "/run":
		d.handleRun(ctx, userID, chatID)
	case "/cancel":
		d.handleCancel(ctx, userID, chatID)
	case "":
		d.handleSessionMessage(ctx, userID, chatID, text)
	default:
		// An unknown slash command is never Python source, but past the
		// code phase it may be a legitimate answer, a path input for
		// instance.
		if _, phase, ok := d.registry.Get(userID); !ok || phase == session.PhaseAwaitingCode {
			d.reply(ctx, chatID, d.deps.Msgs.UseRunHint)
			return
		}
		d.handleSessionMessage(ctx, userID, chatID, text)
	}
}

func (d *dispatcher) handleRun(ctx context.Context, userID, chatID int64) {
	s, err := d.registry.Begin(userID, chatID)
	if err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			d.reply(ctx, chatID, d.deps.Msgs.CancelFirst)
			return
		}
		d.deps.Logger.Error("session_begin_error", "user_id", userID, "error", err.Error())
		d.reply(ctx, chatID, d.deps.Msgs.InternalError)
		return
	}
	d.deps.Logger.Info("session_started", "session_id", s.ID, "user_id", userID, "chat_id", chatID)
	d.reply(ctx, chatID, d.deps.Msgs.SendCode)
}

func (d *dispatcher) handleCancel(ctx context.Context, userID, chatID int64) {
	_, phase, ok := d.registry.Get(userID)
	if !ok {
		d.reply(ctx, chatID, d.deps.Msgs.NothingToCancel)
		return
	}
	// A run that already started always reaches an outcome; the session is
	// released when its result lands.
	if phase == session.PhaseExecuting {
		d.reply(ctx, chatID, d.deps.Msgs.RunInProgress)
		return
	}
	if s, ok := d.registry.Cancel(userID); ok {
		d.deps.Logger.Info("session_cancelled", "session_id", s.ID, "user_id", userID, "phase", s.Phase.String())
	}
	d.reply(ctx, chatID, d.deps.Msgs.Cancelled)
}

func (d *dispatcher) handleSessionMessage(ctx context.Context, userID, chatID int64, text string) {
	s, phase, ok := d.registry.Get(userID)
	if !ok {
		d.reply(ctx, chatID, d.deps.Msgs.UseRunHint)
		return
	}

	switch phase {
	case session.PhaseAwaitingCode:
		count, indeterminate := inputscan.Count(text)
		switch s.AttachSource(text, count, indeterminate) {
		case session.PhaseAwaitingDeclaredCount:
			d.deps.Logger.Info("input_count_indeterminate", "session_id", s.ID)
			d.reply(ctx, chatID, d.deps.Msgs.AskCount)
		case session.PhaseReadyToExecute:
			d.deps.Logger.Info("input_count_known", "session_id", s.ID, "count", 0)
			d.startRun(ctx, s)
		case session.PhaseCollectingInputs:
			d.deps.Logger.Info("input_count_known", "session_id", s.ID, "count", count)
			d.reply(ctx, chatID, d.deps.Msgs.PromptInputText(1, s.Expected))
		}

	case session.PhaseAwaitingDeclaredCount:
		n, convErr := strconv.Atoi(strings.TrimSpace(text))
		if convErr != nil || s.DeclareCount(n) != nil {
			d.reply(ctx, chatID, d.deps.Msgs.InvalidCount)
			return
		}
		d.deps.Logger.Info("input_count_declared", "session_id", s.ID, "count", n)
		d.reply(ctx, chatID,
			d.deps.Msgs.CountAcceptedText(n)+"\n\n"+d.deps.Msgs.PromptInputText(1, n))

	case session.PhaseCollectingInputs:
		ready, err := s.AddInput(text)
		if err != nil {
			d.deps.Logger.Error("collect_input_error", "session_id", s.ID, "error", err.Error())
			return
		}
		if ready {
			d.startRun(ctx, s)
			return
		}
		d.reply(ctx, chatID, d.deps.Msgs.PromptInputText(len(s.Inputs)+1, s.Expected))

	case session.PhaseExecuting:
		d.reply(ctx, chatID, d.deps.Msgs.RunInProgress)
	}
}

func (d *dispatcher) startRun(ctx context.Context, s *session.Session) {
	// The worker that could release this session does not exist until the
	// job is enqueued below, so this write cannot race with Release.
	s.Phase = session.PhaseExecuting
	d.reply(ctx, s.ChatID, d.deps.Msgs.Running)

	job := execJob{
		sessionID: s.ID,
		userID:    s.UserID,
		chatID:    s.ChatID,
		source:    s.Source,
		inputs:    append([]string(nil), s.Inputs...),
	}
	d.deps.Logger.Info("run_enqueued",
		"session_id", s.ID, "chat_id", s.ChatID, "inputs", len(job.inputs), "source_len", len(job.source))
	d.getOrStartWorker(s.ChatID).jobs <- job
}

func (d *dispatcher) getOrStartWorker(chatID int64) *chatWorker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.workers[chatID]; ok {
		return w
	}
	w := &chatWorker{jobs: make(chan execJob, 16)}
	d.workers[chatID] = w

	go func() {
		for job := range w.jobs {
			// Global concurrency limit.
			d.sem <- struct{}{}
			d.runJob(job)
			<-d.sem
		}
	}()
	return w
}

func (d *dispatcher) runJob(job execJob) {
	stopTyping := d.deps.Typing(d.ctx, job.chatID)
	defer stopTyping()

	res, err := d.deps.Run(d.ctx, job.source, job.inputs)

	var reply string
	if err != nil {
		d.deps.Logger.Error("run_error", "session_id", job.sessionID, "error", err.Error())
		reply = d.deps.Msgs.InternalError
	} else {
		d.deps.Logger.Info("run_finished",
			"session_id", job.sessionID,
			"outcome", res.Outcome.String(),
			"exit_code", res.ExitCode,
			"duration", res.Duration.String(),
		)
		reply = d.deps.Msgs.FormatResult(res, d.deps.RunTimeout, d.deps.MaxOutputChars)
	}

	if sendErr := d.deps.SendChunked(d.ctx, job.chatID, reply); sendErr != nil {
		d.deps.Logger.Warn("telegram_send_error", "chat_id", job.chatID, "error", sendErr.Error())
	}
	d.registry.Release(job.userID)
	if d.deps.AfterRun != nil {
		d.deps.AfterRun(job.userID)
	}
}

func (d *dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if err := d.deps.Send(ctx, chatID, text); err != nil {
		d.deps.Logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}
