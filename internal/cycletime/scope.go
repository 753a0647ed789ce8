package cycletime

// Scoped timers for the driver's ReadStatus and ApplyCommand bodies.
// The constructor records the Start transition, End records the End
// transition on every exit path:
//
//	scope := cycletime.NewReadStatusScope(helper, enabled)
//	defer scope.End()
//
// Both transitions can fail (out-of-order calls, invalid durations);
// failures are logged through the helper's throttled warning channel
// and never propagated, because the call sites are real-time code that
// cannot unwind an unrelated stack. A nil helper or inactive scope is a
// no-op, so disabled modules pay nothing.

// ReadStatusScope times one ReadStatus call.
type ReadStatusScope struct {
	helper *Helper
	active bool
}

// NewReadStatusScope records ReadStatusStart when helper is non-nil and
// active is true.
func NewReadStatusScope(helper *Helper, active bool) ReadStatusScope {
	s := ReadStatusScope{helper: helper, active: active}
	if helper == nil || !active {
		return s
	}
	if err := helper.ReadStatusStart(); err != nil {
		helper.warn("hwmcore.cycletime.read_status_scope_failed", "error", err)
	}
	return s
}

// End records ReadStatusEnd.
func (s ReadStatusScope) End() {
	if s.helper == nil || !s.active {
		return
	}
	if err := s.helper.ReadStatusEnd(); err != nil {
		s.helper.warn("hwmcore.cycletime.read_status_scope_failed", "error", err)
	}
}

// ApplyCommandScope times one ApplyCommand call.
type ApplyCommandScope struct {
	helper *Helper
	active bool
}

// NewApplyCommandScope records ApplyCommandStart when helper is non-nil
// and active is true.
func NewApplyCommandScope(helper *Helper, active bool) ApplyCommandScope {
	s := ApplyCommandScope{helper: helper, active: active}
	if helper == nil || !active {
		return s
	}
	if err := helper.ApplyCommandStart(); err != nil {
		helper.warn("hwmcore.cycletime.apply_command_scope_failed", "error", err)
	}
	return s
}

// End records ApplyCommandEnd.
func (s ApplyCommandScope) End() {
	if s.helper == nil || !s.active {
		return
	}
	if err := s.helper.ApplyCommandEnd(); err != nil {
		s.helper.warn("hwmcore.cycletime.apply_command_scope_failed", "error", err)
	}
}
