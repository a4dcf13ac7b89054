package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/waabox/gitpress/internal/domain"
	"github.com/waabox/gitpress/internal/supervisor"
)

// maxBodySize bounds webhook payloads. GitHub caps deliveries at 25 MB.
const maxBodySize = 32 << 20

const branchRefPrefix = "refs/heads/"

// Index resolves the pipelines configured for a branch.
type Index interface {
	Lookup(branch string) []domain.Runnable
}

// Submitter starts a job, replacing the current one.
type Submitter interface {
	Submit(branch string, pipelines []domain.Runnable) *supervisor.Job
}

// pushEvent is the subset of the GitHub push payload gitpress reads.
type pushEvent struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	HeadCommit *struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"head_commit"`
}

// PushConfig configures a PushHandler.
type PushConfig struct {
	// Repository is the "owner/name" pushes are accepted for.
	Repository string
	// VerifySignature enables the X-Hub-Signature-256 check with Secret.
	VerifySignature bool
	Secret          []byte
}

// PushHandler turns GitHub push deliveries into supervisor jobs.
type PushHandler struct {
	config    PushConfig
	index     Index
	submitter Submitter
	logger    *slog.Logger
}

// NewPushHandler creates a push handler. A nil logger uses slog.Default().
func NewPushHandler(config PushConfig, index Index, submitter Submitter, logger *slog.Logger) *PushHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushHandler{config: config, index: index, submitter: submitter, logger: logger}
}

// ServeHTTP handles one delivery. The response only says whether a job was
// started, never whether the build succeeded.
func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.logger.Error("reading webhook body", "error", err)
		writeText(w, http.StatusBadRequest, "unable to read body")
		return
	}

	if h.config.VerifySignature {
		if err := VerifySignature(h.config.Secret, body, r.Header.Get(SignatureHeader)); err != nil {
			h.logger.Warn("webhook signature rejected", "error", err, "remote_addr", r.RemoteAddr)
			if errors.Is(err, ErrSignatureMismatch) {
				writeText(w, http.StatusUnauthorized, "invalid signature")
				return
			}
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "", "push":
	case "ping":
		h.logger.Info("webhook ping received")
		writeText(w, http.StatusOK, "pong")
		return
	default:
		writeText(w, http.StatusOK, fmt.Sprintf("Ignoring %q event", event))
		return
	}

	var push pushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		writeText(w, http.StatusBadRequest, fmt.Sprintf("invalid push payload: %v", err))
		return
	}

	logger := h.logger.With("ref", push.Ref, "after", push.After, "sender", push.Sender.Login)

	if !strings.EqualFold(push.Repository.FullName, h.config.Repository) {
		writeText(w, http.StatusOK, fmt.Sprintf("Push event is not for the correct repo '%s'", h.config.Repository))
		return
	}
	branch, ok := strings.CutPrefix(push.Ref, branchRefPrefix)
	if !ok || branch == "" {
		writeText(w, http.StatusOK, fmt.Sprintf("Ignoring push to %s: not a branch", push.Ref))
		return
	}
	if push.Deleted {
		writeText(w, http.StatusOK, fmt.Sprintf("Ignoring deletion of branch %s", branch))
		return
	}

	pipelines := h.index.Lookup(branch)
	if len(pipelines) == 0 {
		logger.Info("no pipelines configured for branch", "branch", branch)
		writeText(w, http.StatusOK, fmt.Sprintf("No pipeline found for branch %s", branch))
		return
	}

	job := h.submitter.Submit(branch, pipelines)
	logger.Info("build job submitted", "job", job.ID, "branch", branch, "pipelines", len(pipelines))
	writeText(w, http.StatusAccepted, fmt.Sprintf("Build job %s started for branch %s", job.ID, branch))
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
