package host

import (
	"sort"
	"sync"
	"time"
)

// SimulatedPage is an in-process Host implementation. Tests and the
// sidecar bridge drive it programmatically: elements are registered by
// selector, events are dispatched synchronously on the calling
// goroutine, mirroring the single-threaded page model.
type SimulatedPage struct {
	mutex sync.Mutex

	url      string
	elements map[string]bool
	forms    map[string]*SimulatedForm

	nextListenerID  int
	clickListeners  map[string]map[int]func(ClickEvent)
	submitListeners map[string]map[int]func(SubmitEvent) // "" key watches all forms
	scrollListeners map[int]func(ScrollSource)

	scrolled       float64
	documentHeight float64
	viewportHeight float64
}

// SimulatedForm models a form on the simulated page.
type SimulatedForm struct {
	Selector string
	Email    string

	// NativeSubmits counts submissions that reached the page natively,
	// either because no listener prevented them or via Resubmit.
	NativeSubmits int
}

// NewSimulatedPage creates a page at the given URL with a 2000px
// document in an 800px viewport.
func NewSimulatedPage(url string) *SimulatedPage {
	return &SimulatedPage{
		url:             url,
		elements:        make(map[string]bool),
		forms:           make(map[string]*SimulatedForm),
		clickListeners:  make(map[string]map[int]func(ClickEvent)),
		submitListeners: make(map[string]map[int]func(SubmitEvent)),
		scrollListeners: make(map[int]func(ScrollSource)),
		documentHeight:  2000,
		viewportHeight:  800,
	}
}

func (p *SimulatedPage) URL() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.url
}

// SetURL changes the page URL (navigation within the simulation).
func (p *SimulatedPage) SetURL(url string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.url = url
}

// AddElement registers a selector as present on the page.
func (p *SimulatedPage) AddElement(selector string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.elements[selector] = true
}

// AddForm registers a form. The email value is returned to submit
// listeners that look for an email-typed input.
func (p *SimulatedPage) AddForm(selector, email string) *SimulatedForm {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	form := &SimulatedForm{Selector: selector, Email: email}
	p.forms[selector] = form
	p.elements[selector] = true
	return form
}

func (p *SimulatedPage) ElementExists(selector string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.elements[selector]
}

func (p *SimulatedPage) OnClick(selector string, fn func(ClickEvent)) func() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.clickListeners[selector] == nil {
		p.clickListeners[selector] = make(map[int]func(ClickEvent))
	}
	id := p.nextListenerID
	p.nextListenerID++
	p.clickListeners[selector][id] = fn
	return func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		delete(p.clickListeners[selector], id)
	}
}

func (p *SimulatedPage) OnSubmit(selector string, fn func(SubmitEvent)) func() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.submitListeners[selector] == nil {
		p.submitListeners[selector] = make(map[int]func(SubmitEvent))
	}
	id := p.nextListenerID
	p.nextListenerID++
	p.submitListeners[selector][id] = fn
	return func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		delete(p.submitListeners[selector], id)
	}
}

func (p *SimulatedPage) OnScroll(fn func(ScrollSource)) func() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	id := p.nextListenerID
	p.nextListenerID++
	p.scrollListeners[id] = fn
	return func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		delete(p.scrollListeners, id)
	}
}

func (p *SimulatedPage) ScrollPosition() (float64, float64, float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.scrolled, p.documentHeight, p.viewportHeight
}

// SetDocumentSize adjusts the simulated document and viewport heights.
func (p *SimulatedPage) SetDocumentSize(documentHeight, viewportHeight float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.documentHeight = documentHeight
	p.viewportHeight = viewportHeight
}

func (p *SimulatedPage) After(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// Click dispatches a click on the selector.
func (p *SimulatedPage) Click(selector string) {
	p.mutex.Lock()
	listeners := collectOrdered(p.clickListeners[selector])
	p.mutex.Unlock()

	event := &simulatedClickEvent{}
	for _, fn := range listeners {
		fn(event)
	}
}

// SubmitForm dispatches a submit on the form. It returns true when the
// submission reached the page natively (no listener prevented it).
func (p *SimulatedPage) SubmitForm(selector string) bool {
	p.mutex.Lock()
	form := p.forms[selector]
	listeners := collectOrdered(p.submitListeners[selector])
	listeners = append(listeners, collectOrdered(p.submitListeners[""])...)
	p.mutex.Unlock()

	if form == nil {
		return false
	}

	event := &simulatedSubmitEvent{form: form, page: p}
	for _, fn := range listeners {
		fn(event)
	}
	if !event.prevented {
		p.mutex.Lock()
		form.NativeSubmits++
		p.mutex.Unlock()
		return true
	}
	return false
}

// Scroll moves the page to the offset and dispatches from the source.
func (p *SimulatedPage) Scroll(offset float64, source ScrollSource) {
	p.mutex.Lock()
	p.scrolled = offset
	listeners := collectOrdered(p.scrollListeners)
	p.mutex.Unlock()

	for _, fn := range listeners {
		fn(source)
	}
}

// collectOrdered snapshots listeners in attach order so dispatch stays
// deterministic.
func collectOrdered[T any](m map[int]T) []T {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

type simulatedClickEvent struct {
	prevented bool
}

func (e *simulatedClickEvent) PreventDefault() { e.prevented = true }

type simulatedSubmitEvent struct {
	form      *SimulatedForm
	page      *SimulatedPage
	prevented bool
}

func (e *simulatedSubmitEvent) PreventDefault() { e.prevented = true }

func (e *simulatedSubmitEvent) EmailValue() string { return e.form.Email }

func (e *simulatedSubmitEvent) Resubmit() {
	e.page.mutex.Lock()
	defer e.page.mutex.Unlock()
	e.form.NativeSubmits++
}
