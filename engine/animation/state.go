package animation

import (
	"fmt"
	stdmath "math"
	"sort"

	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/** @brief The playback state of one animation on one entity. */
type AnimationState struct {
	name    string
	timePos float32
	length  float32
	weight  float32
	enabled bool
	loop    bool
}

func (s *AnimationState) Name() string {
	return s.name
}

func (s *AnimationState) TimePosition() float32 {
	return s.timePos
}

// SetTimePosition moves the play head. Looping states wrap around the length,
// others clamp to [0, length].
func (s *AnimationState) SetTimePosition(t float32) {
	if s.loop && s.length > 0 {
		t = float32(stdmath.Mod(float64(t), float64(s.length)))
		if t < 0 {
			t += s.length
		}
	} else {
		t = max(0, min(t, s.length))
	}
	s.timePos = t
}

func (s *AnimationState) AddTime(delta float32) {
	s.SetTimePosition(s.timePos + delta)
}

func (s *AnimationState) HasEnded() bool {
	return !s.loop && s.timePos >= s.length
}

func (s *AnimationState) Length() float32 {
	return s.length
}

func (s *AnimationState) SetLength(length float32) {
	s.length = length
}

func (s *AnimationState) Weight() float32 {
	return s.weight
}

func (s *AnimationState) SetWeight(w float32) {
	s.weight = w
}

func (s *AnimationState) Enabled() bool {
	return s.enabled
}

func (s *AnimationState) SetEnabled(enabled bool) {
	s.enabled = enabled
}

func (s *AnimationState) Loop() bool {
	return s.loop
}

func (s *AnimationState) SetLoop(loop bool) {
	s.loop = loop
}

/** @brief The animation states of one entity, by animation name. */
type AnimationStateSet struct {
	states map[string]*AnimationState
}

func NewAnimationStateSet() *AnimationStateSet {
	return &AnimationStateSet{states: map[string]*AnimationState{}}
}

func (set *AnimationStateSet) CreateAnimationState(name string, timePos, length, weight float32, enabled bool) (*AnimationState, error) {
	if _, ok := set.states[name]; ok {
		return nil, fmt.Errorf("animation state '%s': %w", name, core.ErrDuplicateItem)
	}
	s := &AnimationState{name: name, length: length, weight: weight, enabled: enabled, loop: true}
	s.SetTimePosition(timePos)
	set.states[name] = s
	return s, nil
}

func (set *AnimationStateSet) AnimationState(name string) (*AnimationState, error) {
	s, ok := set.states[name]
	if !ok {
		return nil, fmt.Errorf("animation state '%s': %w", name, core.ErrItemNotFound)
	}
	return s, nil
}

func (set *AnimationStateSet) HasAnimationState(name string) bool {
	_, ok := set.states[name]
	return ok
}

func (set *AnimationStateSet) RemoveAnimationState(name string) {
	delete(set.states, name)
}

func (set *AnimationStateSet) RemoveAllAnimationStates() {
	clear(set.states)
}

func (set *AnimationStateSet) Names() []string {
	names := make([]string, 0, len(set.states))
	for n := range set.states {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EnabledStates returns the enabled states ordered by name.
func (set *AnimationStateSet) EnabledStates() []*AnimationState {
	var out []*AnimationState
	for _, n := range set.Names() {
		if s := set.states[n]; s.enabled {
			out = append(out, s)
		}
	}
	return out
}
