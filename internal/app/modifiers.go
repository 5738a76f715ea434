package app

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// modifierManager tracks remaining modifier uses and the modifiers active for
// the current question. Activations are keyed by question index, so they stop
// applying as soon as the session moves to another question.
type modifierManager struct {
	mu        sync.Mutex
	inventory map[domain.ModifierKind]int
	remaining map[string]map[domain.ModifierKind]int
	active    map[string]*activeModifiers
	rnd       *rand.Rand
}

type activeModifiers struct {
	questionIndex int
	kinds         []domain.ModifierKind
	hidden        []int
}

func newModifierManager(inventory map[domain.ModifierKind]int, rnd *rand.Rand) *modifierManager {
	inv := make(map[domain.ModifierKind]int, len(inventory))
	for kind, n := range inventory {
		if kind.Valid() && n > 0 {
			inv[kind] = n
		}
	}
	return &modifierManager{
		inventory: inv,
		remaining: make(map[string]map[domain.ModifierKind]int),
		active:    make(map[string]*activeModifiers),
		rnd:       rnd,
	}
}

func (m *modifierManager) register(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.ModifierKind]int, len(m.inventory))
	for kind, n := range m.inventory {
		counts[kind] = n
	}
	m.remaining[playerID] = counts
}

// activate consumes one use of kind for the given question. Activating a kind
// that is already active for the question returns the same result for free.
func (m *modifierManager) activate(playerID string, questionIndex int, q domain.Question, kind domain.ModifierKind) (domain.ModifierResult, error) {
	if !kind.Valid() {
		return domain.ModifierResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownModifier, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	counts, ok := m.remaining[playerID]
	if !ok {
		return domain.ModifierResult{}, domain.ErrPlayerNotFound
	}
	if _, offered := m.inventory[kind]; !offered {
		return domain.ModifierResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownModifier, kind)
	}

	act := m.activeLocked(playerID, questionIndex)
	if act != nil && act.has(kind) {
		return m.resultLocked(counts, act, kind), nil
	}
	if counts[kind] <= 0 {
		return domain.ModifierResult{}, fmt.Errorf("%w: %s", domain.ErrNoUsesRemaining, kind)
	}
	// at least one wrong option has to stay visible next to the correct one
	if kind == domain.ModifierFiftyFifty && wrongCount(q) < 2 {
		return domain.ModifierResult{}, fmt.Errorf("%w: %s on question %s", domain.ErrModifierUnavailable, kind, q.ID)
	}

	counts[kind]--
	if act == nil {
		act = &activeModifiers{questionIndex: questionIndex}
		m.active[playerID] = act
	}
	act.kinds = append(act.kinds, kind)
	if kind == domain.ModifierFiftyFifty {
		act.hidden = m.pickWrongLocked(q, 2)
	}
	return m.resultLocked(counts, act, kind), nil
}

// consume returns the scoring multiplier of the player's active modifiers for
// the question and the modifier to record on the answer.
func (m *modifierManager) consume(playerID string, questionIndex int) (float64, domain.ModifierKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	act := m.activeLocked(playerID, questionIndex)
	if act == nil || len(act.kinds) == 0 {
		return 1, ""
	}
	if act.has(domain.ModifierDoublePoints) {
		return domain.ModifierDoublePoints.Multiplier(), domain.ModifierDoublePoints
	}
	return 1, act.kinds[len(act.kinds)-1]
}

func (m *modifierManager) status(playerID string, questionIndex int) (map[domain.ModifierKind]int, []domain.ModifierKind, []int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.ModifierKind]int, len(m.remaining[playerID]))
	for kind, n := range m.remaining[playerID] {
		counts[kind] = n
	}
	act := m.activeLocked(playerID, questionIndex)
	if act == nil {
		return counts, nil, nil
	}
	return counts, append([]domain.ModifierKind(nil), act.kinds...), append([]int(nil), act.hidden...)
}

func (m *modifierManager) activeLocked(playerID string, questionIndex int) *activeModifiers {
	act, ok := m.active[playerID]
	if !ok || act.questionIndex != questionIndex {
		return nil
	}
	return act
}

func (m *modifierManager) resultLocked(counts map[domain.ModifierKind]int, act *activeModifiers, kind domain.ModifierKind) domain.ModifierResult {
	res := domain.ModifierResult{Kind: kind, Remaining: counts[kind]}
	if kind == domain.ModifierFiftyFifty {
		res.HiddenOptions = append([]int(nil), act.hidden...)
	}
	return res
}

// pickWrongLocked chooses up to n wrong option indices at random. The correct
// option is never among them and one wrong option always stays visible.
func (m *modifierManager) pickWrongLocked(q domain.Question, n int) []int {
	wrong := make([]int, 0, len(q.Options))
	for _, opt := range q.Options {
		if !opt.Correct {
			wrong = append(wrong, opt.Index)
		}
	}
	m.rnd.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	if n > len(wrong)-1 {
		n = len(wrong) - 1
	}
	if n < 0 {
		n = 0
	}
	wrong = wrong[:n]
	sort.Ints(wrong)
	return wrong
}

func wrongCount(q domain.Question) int {
	n := 0
	for _, opt := range q.Options {
		if !opt.Correct {
			n++
		}
	}
	return n
}

func (a *activeModifiers) has(kind domain.ModifierKind) bool {
	for _, k := range a.kinds {
		if k == kind {
			return true
		}
	}
	return false
}
