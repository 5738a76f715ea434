package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

// QuizLoader loads quizzes from the quizzes, questions and answer_options tables.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx, `SELECT title FROM quizzes WHERE id=$1`, quizID).Scan(&quiz.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.prompt, q.points, q.time_limit_seconds, o.option_index, o.text, o.is_correct
		FROM questions q
		JOIN answer_options o ON o.question_id = q.id
		WHERE q.quiz_id = $1
		ORDER BY q.order_index, o.option_index`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q   domain.Question
			opt domain.Option
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Points, &q.TimeLimitSeconds, &opt.Index, &opt.Text, &opt.Correct); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		n := len(quiz.Questions)
		if n == 0 || quiz.Questions[n-1].ID != q.ID {
			quiz.Questions = append(quiz.Questions, q)
			n++
		}
		quiz.Questions[n-1].Options = append(quiz.Questions[n-1].Options, opt)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}
