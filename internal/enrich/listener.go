package enrich

// Listener receives batch progress. Every callback is optional. OnResponse and
// OnNotFoundStreet are called from concurrent goroutines.
type Listener struct {
	OnResponse         func(status int)
	OnResponseContinue func()
	OnNotFoundStreet   func(street string)
	OnComplete         func(buildings []*Building)
}

func (l *Listener) response(status int) {
	if l != nil && l.OnResponse != nil {
		l.OnResponse(status)
	}
}

func (l *Listener) responseContinue() {
	if l != nil && l.OnResponseContinue != nil {
		l.OnResponseContinue()
	}
}

func (l *Listener) notFoundStreet(street string) {
	if l != nil && l.OnNotFoundStreet != nil {
		l.OnNotFoundStreet(street)
	}
}

func (l *Listener) complete(buildings []*Building) {
	if l != nil && l.OnComplete != nil {
		l.OnComplete(buildings)
	}
}
