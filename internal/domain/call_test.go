package domain

import "testing"

func TestCallTransitionGraph(t *testing.T) {
	allowed := []struct {
		from, to CallStatus
	}{
		{CallOpen, CallAssigned},
		{CallAssigned, CallEnRoute},
		{CallEnRoute, CallOnScene},
		{CallOnScene, CallHooked},
		{CallHooked, CallInTransit},
		{CallInTransit, CallCompleted},
		{CallOpen, CallCancelled},
		{CallEnRoute, CallCancelled},
		{CallInTransit, CallCancelled},
	}
	for _, tt := range allowed {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
		}
	}

	denied := []struct {
		from, to CallStatus
	}{
		{CallOpen, CallEnRoute},
		{CallAssigned, CallOpen},
		{CallEnRoute, CallCompleted},
		{CallCompleted, CallCancelled},
		{CallCancelled, CallOpen},
		{CallCompleted, CallOpen},
	}
	for _, tt := range denied {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tt.from, tt.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []CallStatus{CallCompleted, CallCancelled} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}
	for _, s := range []CallStatus{CallOpen, CallAssigned, CallEnRoute, CallOnScene, CallHooked, CallInTransit} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}

func TestValidCallStatus(t *testing.T) {
	if !ValidCallStatus(CallHooked) {
		t.Error("hooked should be valid")
	}
	if ValidCallStatus("towed") {
		t.Error("unknown status accepted")
	}
}
