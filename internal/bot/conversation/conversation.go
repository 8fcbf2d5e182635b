// Package conversation is the chat flow shared by the Telegram and LINE
// adapters: commands, the allergy and API key prompts, and photo analysis.
// Adapters only translate platform events into these calls and send the
// replies back.
package conversation

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/messages"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/state"
	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/interfaces"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// Identity is a chat user as seen by an adapter.
type Identity struct {
	Platform domain.Platform
	UserID   string
	Name     string
}

func (id Identity) stateKey() string {
	return state.Key(id.Platform, id.UserID)
}

// Reply is what the adapter sends back.
type Reply struct {
	Text string
	// DeleteTrigger asks the adapter to delete the user's message, which
	// carried an API key.
	DeleteTrigger bool
}

// Run is an accepted photo analysis.
type Run struct {
	UserID    uint
	Allergies []string
}

type Service struct {
	creds    interfaces.CredentialServiceInterface
	analyzer interfaces.AnalyzerInterface
	states   state.StateManager
	errs     *apperrors.Handler
}

func New(creds interfaces.CredentialServiceInterface, analyzer interfaces.AnalyzerInterface, states state.StateManager) *Service {
	return &Service{
		creds:    creds,
		analyzer: analyzer,
		states:   states,
		errs:     apperrors.NewHandler(logger.GetLogger()),
	}
}

// Start wipes the user's stored key and allergies and greets them.
func (s *Service) Start(ctx context.Context, id Identity) (Reply, error) {
	userID, err := s.creds.ResolveUser(ctx, string(id.Platform), id.UserID)
	if err != nil {
		return Reply{}, err
	}
	if err := s.creds.ResetUser(ctx, userID); err != nil {
		return Reply{}, err
	}
	s.resetState(ctx, id)
	logger.Info("User started a conversation", "platform", id.Platform, "user_id", userID)
	return Reply{Text: messages.Welcome(id.Name)}, nil
}

// Forget deletes the user with their key and allergies. LINE reports this
// as an unfollow, after which the user can no longer be messaged.
func (s *Service) Forget(ctx context.Context, id Identity) error {
	if err := s.creds.DeleteUser(ctx, string(id.Platform), id.UserID); err != nil {
		return err
	}
	s.resetState(ctx, id)
	s.states.ClearTempData(ctx, id.stateKey())
	logger.Info("User forgotten", "platform", id.Platform)
	return nil
}

func (s *Service) Help() Reply {
	return Reply{Text: messages.Help()}
}

// HandleCommand runs a slash command. cmd is given without the leading
// slash; args is whatever followed it on the same message.
func (s *Service) HandleCommand(ctx context.Context, id Identity, cmd, args string) (Reply, error) {
	args = strings.TrimSpace(args)

	switch strings.ToLower(cmd) {
	case "start":
		return s.Start(ctx, id)
	case "help":
		return s.Help(), nil
	case "setallergy":
		if args != "" {
			s.resetState(ctx, id)
			return s.saveAllergies(ctx, id, args)
		}
		return s.promptAllergies(ctx, id)
	case "setapikey":
		if args != "" {
			s.resetState(ctx, id)
			return s.saveAPIKey(ctx, id, args)
		}
		s.states.SetUserState(ctx, id.stateKey(), state.WaitingForAPIKey)
		return Reply{Text: messages.APIKeyPrompt}, nil
	case "myallergies":
		userID, err := s.creds.ResolveUser(ctx, string(id.Platform), id.UserID)
		if err != nil {
			return Reply{}, err
		}
		allergies, err := s.creds.GetAllergies(ctx, userID)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: messages.MyAllergies(allergies)}, nil
	case "clear":
		return s.clear(ctx, id)
	case "cancel":
		if s.states.GetUserState(ctx, id.stateKey()) == state.None {
			return Reply{Text: messages.NothingToCancel}, nil
		}
		s.resetState(ctx, id)
		return Reply{Text: messages.Cancelled}, nil
	default:
		return Reply{Text: messages.UnknownCommand}, nil
	}
}

// HandleText handles a plain text message according to the user's state.
func (s *Service) HandleText(ctx context.Context, id Identity, text string) (Reply, error) {
	switch s.states.GetUserState(ctx, id.stateKey()) {
	case state.WaitingForAllergies:
		return s.saveAllergies(ctx, id, text)
	case state.WaitingForAPIKey:
		if strings.TrimSpace(text) == "" {
			return Reply{Text: messages.APIKeyPrompt}, nil
		}
		s.resetState(ctx, id)
		return s.saveAPIKey(ctx, id, text)
	default:
		return Reply{Text: messages.SendPhotoHint}, nil
	}
}

// PrepareAnalysis checks that the user can run an analysis. It returns a nil
// Run and an explanatory reply when no API key is stored; otherwise the
// reply is the acknowledgement to send before the pipeline starts.
func (s *Service) PrepareAnalysis(ctx context.Context, id Identity) (*Run, Reply, error) {
	userID, err := s.creds.ResolveUser(ctx, string(id.Platform), id.UserID)
	if err != nil {
		return nil, Reply{}, err
	}
	hasKey, err := s.creds.HasAPIKey(ctx, userID)
	if err != nil {
		return nil, Reply{}, err
	}
	if !hasKey {
		return nil, Reply{Text: messages.APIKeyRequired}, nil
	}
	allergies, err := s.creds.GetAllergies(ctx, userID)
	if err != nil {
		return nil, Reply{}, err
	}
	// A photo ends any pending prompt.
	s.resetState(ctx, id)
	return &Run{UserID: userID, Allergies: allergies}, Reply{Text: messages.Acknowledge(allergies)}, nil
}

// Analyze runs the pipeline and renders the result. Pipeline errors become
// user-facing sentences; they are never returned.
func (s *Service) Analyze(ctx context.Context, id Identity, run *Run, image []byte) Reply {
	ctx = logger.ContextWithRun(ctx, uuid.NewString(), string(id.Platform))

	result, err := s.analyzer.Analyze(ctx, run.UserID, image)
	if err != nil {
		s.errs.Handle(ctx, err)
		return ErrorReply(err)
	}
	return Reply{Text: messages.RenderResult(result)}
}

// ErrorReply converts an error into the sentence shown to the user.
func ErrorReply(err error) Reply {
	return Reply{Text: apperrors.UserMessage(err)}
}

// ParseAllergyList splits user input on ASCII and full-width commas and the
// ideographic enumeration comma.
func ParseAllergyList(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '，' || r == '、' || r == '\n'
	})
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseCommand splits "/cmd@bot args" into its parts. ok is false when text
// is not a command.
func ParseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.Index(head, "\n"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (s *Service) promptAllergies(ctx context.Context, id Identity) (Reply, error) {
	userID, err := s.creds.ResolveUser(ctx, string(id.Platform), id.UserID)
	if err != nil {
		return Reply{}, err
	}
	current, err := s.creds.GetAllergies(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	s.states.SetUserState(ctx, id.stateKey(), state.WaitingForAllergies)
	return Reply{Text: messages.AllergyPrompt(current)}, nil
}

func (s *Service) saveAllergies(ctx context.Context, id Identity, text string) (Reply, error) {
	userID, err := s.creds.ResolveUser(ctx, string(id.Platform), id.UserID)
	if err != nil {
		return Reply{}, err
	}

	allergies := ParseAllergyList(text)
	if len(allergies) == 0 {
		current, err := s.creds.GetAllergies(ctx, userID)
		if err != nil {
			return Reply{}, err
		}
		s.states.SetUserState(ctx, id.stateKey(), state.WaitingForAllergies)
		return Reply{Text: messages.AllergyInputInvalid(current)}, nil
	}

	saved, err := s.creds.SetAllergies(ctx, userID, allergies)
	if err != nil {
		return Reply{}, err
	}
	s.resetState(ctx, id)
	logger.Info("Allergies updated", "platform", id.Platform, "user_id", userID, "count", len(saved))
	return Reply{Text: messages.AllergiesSaved(saved)}, nil
}

func (s *Service) saveAPIKey(ctx context.Context, id Identity, key string) (Reply, error) {
	userID, err := s.creds.ResolveUser(ctx, string(id.Platform), id.UserID)
	if err != nil {
		return Reply{}, err
	}
	if err := s.creds.SetAPIKey(ctx, userID, key); err != nil {
		return Reply{}, err
	}
	logger.Info("API key updated", "platform", id.Platform, "user_id", userID)

	if canDeleteUserMessages(id.Platform) {
		return Reply{Text: messages.APIKeySaved, DeleteTrigger: true}, nil
	}
	return Reply{Text: messages.APIKeySavedNoDel}, nil
}

func (s *Service) clear(ctx context.Context, id Identity) (Reply, error) {
	current := s.states.GetUserState(ctx, id.stateKey())
	if current == state.None {
		return Reply{Text: messages.NothingToClear}, nil
	}

	userID, err := s.creds.ResolveUser(ctx, string(id.Platform), id.UserID)
	if err != nil {
		return Reply{}, err
	}

	var reply Reply
	switch current {
	case state.WaitingForAPIKey:
		if err := s.creds.ClearAPIKey(ctx, userID); err != nil {
			return Reply{}, err
		}
		reply = Reply{Text: messages.APIKeyCleared}
	default:
		if _, err := s.creds.SetAllergies(ctx, userID, nil); err != nil {
			return Reply{}, err
		}
		reply = Reply{Text: messages.AllergiesCleared}
	}
	s.resetState(ctx, id)
	return reply, nil
}

func (s *Service) resetState(ctx context.Context, id Identity) {
	s.states.ClearUserState(ctx, id.stateKey())
}

// LINE bots cannot delete messages sent by users.
func canDeleteUserMessages(p domain.Platform) bool {
	return p == domain.PlatformTelegram
}
