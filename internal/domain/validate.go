package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateQuestion checks option shape: 2-4 options, unique indices in 0..3, exactly one correct.
func ValidateQuestion(q Question) error {
	if err := validatorInstance().Struct(q); err != nil {
		return wrapValidation("question "+q.ID, err)
	}
	seen := make(map[int]struct{}, len(q.Options))
	correct := 0
	for _, opt := range q.Options {
		if _, dup := seen[opt.Index]; dup {
			return fmt.Errorf("%w: question %s: duplicate option index %d", ErrValidation, q.ID, opt.Index)
		}
		seen[opt.Index] = struct{}{}
		if opt.Correct {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("%w: question %s: expected exactly one correct option, got %d", ErrValidation, q.ID, correct)
	}
	return nil
}

// ValidateQuiz validates every question of the quiz. An empty quiz is valid here;
// starting it fails with ErrEmptyQuiz.
func ValidateQuiz(quiz Quiz) error {
	if err := validatorInstance().Struct(quiz); err != nil {
		return wrapValidation("quiz "+quiz.ID, err)
	}
	ids := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if _, dup := ids[q.ID]; dup {
			return fmt.Errorf("%w: quiz %s: duplicate question id %s", ErrValidation, quiz.ID, q.ID)
		}
		ids[q.ID] = struct{}{}
		if err := ValidateQuestion(q); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeJoin trims and validates lobby input, filling the default avatar.
func NormalizeJoin(req JoinRequest) (JoinRequest, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	req.AvatarID = strings.TrimSpace(req.AvatarID)
	req.AccountID = strings.TrimSpace(req.AccountID)
	if req.AvatarID == "" {
		req.AvatarID = DefaultAvatar
	}
	if err := validatorInstance().Struct(req); err != nil {
		return req, wrapValidation("join", err)
	}
	return req, nil
}

// DefaultAvatar is assigned when a player does not pick one.
const DefaultAvatar = "bear"

func wrapValidation(subject string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return fmt.Errorf("%w: %s: field %s failed %q", ErrValidation, subject, first.Namespace(), first.Tag())
	}
	return fmt.Errorf("%w: %s: %v", ErrValidation, subject, err)
}
