package soy

import "github.com/archimag/soy-go/value"

// loopInfo is the position of a foreach iteration, used by the index,
// isFirst and isLast functions.
type loopInfo struct {
	item   string
	index  int
	length int
}

type frame struct {
	vars    map[string]value.Value
	loop    *loopInfo
	barrier bool
}

// scope is the variable chain of one render. Frames live in an arena and
// active holds the indices of the frames currently in scope, innermost
// last. Frames are only ever pushed and popped in stack order, so popping
// truncates both slices.
type scope struct {
	frames []frame
	active []int
}

func newScope(root value.Value) *scope {
	s := &scope{}
	s.pushBarrier(root)
	return s
}

// push opens a frame that sees every enclosing frame up to the nearest
// barrier.
func (s *scope) push() {
	s.frames = append(s.frames, frame{})
	s.active = append(s.active, len(s.frames)-1)
}

// pushBarrier opens a frame holding the entries of root that hides all
// frames below it. Called templates start from a barrier frame.
func (s *scope) pushBarrier(root value.Value) {
	vars, _ := root.AsMap()
	s.frames = append(s.frames, frame{vars: vars, barrier: true})
	s.active = append(s.active, len(s.frames)-1)
}

func (s *scope) pop() {
	if len(s.active) == 0 {
		return
	}
	s.active = s.active[:len(s.active)-1]
	s.frames = s.frames[:len(s.frames)-1]
}

func (s *scope) top() *frame {
	return &s.frames[s.active[len(s.active)-1]]
}

// define binds name in the innermost frame.
func (s *scope) define(name string, val value.Value) {
	f := s.top()
	if f.barrier {
		// the root frame aliases caller data and is never written to
		return
	}
	if f.vars == nil {
		f.vars = make(map[string]value.Value, 2)
	}
	f.vars[name] = val
}

func (s *scope) setLoop(info *loopInfo) {
	s.top().loop = info
}

// resolve looks name up from the innermost frame outwards. Unbound names
// resolve to None.
func (s *scope) resolve(name string) value.Value {
	for i := len(s.active) - 1; i >= 0; i-- {
		f := &s.frames[s.active[i]]
		if v, ok := f.vars[name]; ok {
			return v
		}
		if f.barrier {
			break
		}
	}
	return value.None()
}

// loop returns the position of the innermost foreach iterating name.
func (s *scope) loop(name string) (*loopInfo, bool) {
	for i := len(s.active) - 1; i >= 0; i-- {
		f := &s.frames[s.active[i]]
		if f.loop != nil && f.loop.item == name {
			return f.loop, true
		}
		if f.barrier {
			break
		}
	}
	return nil, false
}

// root returns the data the innermost barrier frame was built from.
func (s *scope) root() map[string]value.Value {
	for i := len(s.active) - 1; i >= 0; i-- {
		if f := &s.frames[s.active[i]]; f.barrier {
			return f.vars
		}
	}
	return nil
}

func (s *scope) depth() int {
	return len(s.active)
}
