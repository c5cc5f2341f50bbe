package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/nlu"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/providers"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

type stubClassifier struct {
	result nlu.IntentResult
	calls  int
}

func (s *stubClassifier) Classify(_ context.Context, _ string) nlu.IntentResult {
	s.calls++
	return s.result
}

type stubSearcher struct {
	found []providers.Provider
	tier  providers.Tier
	calls []string
}

func (s *stubSearcher) Search(_ context.Context, department, zip string, _ int) ([]providers.Provider, providers.Tier) {
	s.calls = append(s.calls, department+"|"+zip)
	return s.found, s.tier
}

type stubUrgent struct {
	texts []string
	err   error
}

func (s *stubUrgent) Open(_ context.Context, text, _ string) (*scheduling.UrgentCase, nlu.TriageResult, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, nlu.TriageResult{}, s.err
	}
	return &scheduling.UrgentCase{ID: "case-1"}, nlu.TriageResult{Severity: nlu.SeverityUrgent, Escalate: true}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []scheduling.Confirmation
}

func (n *recordingNotifier) NotifyBooked(_ context.Context, c scheduling.Confirmation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
}

type recordingTranscript struct {
	roles []string
}

func (r *recordingTranscript) Append(_ context.Context, _, role, _ string) error {
	r.roles = append(r.roles, role)
	return nil
}

type testEngine struct {
	*Engine
	store *MemoryStore
	repo  *scheduling.MemoryRepository
}

func newTestEngine(t *testing.T, opts ...EngineOption) testEngine {
	t.Helper()
	repo := scheduling.NewMemoryRepository()
	store := NewMemoryStore()
	e := NewEngine(store, repo, nil, scheduling.NewCalendar(repo, time.UTC), logging.Default(), opts...)
	return testEngine{Engine: e, store: store, repo: repo}
}

func (te testEngine) seedSlots(t *testing.T, department, provider string) []scheduling.Slot {
	t.Helper()
	slots := scheduling.GenerateWeek(department, provider, time.Now().Add(24*time.Hour).UTC())
	if err := te.repo.InsertSlots(context.Background(), slots); err != nil {
		t.Fatalf("seed slots: %v", err)
	}
	return slots
}

func (te testEngine) setState(t *testing.T, id string, st *State) {
	t.Helper()
	if err := te.store.Save(context.Background(), id, st); err != nil {
		t.Fatalf("save state: %v", err)
	}
}

func (te testEngine) state(t *testing.T, id string) *State {
	t.Helper()
	_, st, err := te.store.GetOrCreate(context.Background(), id)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return st
}

func (te testEngine) say(t *testing.T, id, msg string) Response {
	t.Helper()
	resp, err := te.HandleTurn(context.Background(), Turn{ConversationID: id, Message: msg})
	if err != nil {
		t.Fatalf("HandleTurn(%q): %v", msg, err)
	}
	return resp
}

func twoProviders() []providers.Provider {
	return []providers.Provider{
		{NPI: "1", Name: "Dr. Ada Lane", City: "CHICAGO", State: "IL"},
		{NPI: "2", Name: "Dr. Omar Fields", City: "CHICAGO", State: "IL"},
	}
}

func TestScenarioA_KeywordFallbackAsksForZip(t *testing.T) {
	searcher := &stubSearcher{}
	te := newTestEngine(t, WithProviderSearcher(searcher))

	resp, err := te.HandleTurn(context.Background(), Turn{Message: "I need a cardiology appointment for chest tightness"})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp.ConversationID == "" {
		t.Fatalf("expected a conversation id to be minted")
	}
	if resp.Intent != nlu.IntentBook || resp.Department != scheduling.Cardiology {
		t.Fatalf("unexpected classification: %+v", resp)
	}
	if resp.Reply != replyAskZip {
		t.Fatalf("expected zip question, got %q", resp.Reply)
	}
	st := te.state(t, resp.ConversationID)
	if !st.AwaitingLocation {
		t.Fatalf("expected awaitingLocation")
	}
	if len(searcher.calls) != 0 {
		t.Fatalf("directory should not be searched without a zip")
	}
}

func TestScenarioB_ZipListsProviders(t *testing.T) {
	searcher := &stubSearcher{found: twoProviders(), tier: providers.TierNone}
	te := newTestEngine(t, WithProviderSearcher(searcher))
	te.setState(t, "conv-b", &State{Intent: nlu.IntentBook, Department: scheduling.Cardiology, AwaitingLocation: true})

	resp := te.say(t, "conv-b", "60614")

	want := "Here are nearby providers. Reply with a number: 1) Dr. Ada Lane (CHICAGO IL) 2) Dr. Omar Fields (CHICAGO IL)"
	if resp.Reply != want {
		t.Fatalf("reply = %q, want %q", resp.Reply, want)
	}
	if len(resp.SuggestedProviders) != 2 {
		t.Fatalf("expected 2 suggested providers, got %d", len(resp.SuggestedProviders))
	}
	if len(searcher.calls) != 1 || searcher.calls[0] != "Cardiology|60614" {
		t.Fatalf("unexpected searches: %v", searcher.calls)
	}
	st := te.state(t, "conv-b")
	if !st.AwaitingProvider || st.AwaitingLocation || st.ProviderNeedsDepartment {
		t.Fatalf("unexpected flags: %+v", st)
	}
	if st.LocationZip != "60614" {
		t.Fatalf("zip not stored: %q", st.LocationZip)
	}
}

func TestProviderTierPrefixes(t *testing.T) {
	cases := []struct {
		tier     providers.Tier
		prefix   string
		widened  bool
		deptless bool
	}{
		{providers.TierNearby, prefixProvidersNearby, true, false},
		{providers.TierBroader, prefixProvidersBroader, true, false},
		{providers.TierNone, prefixProvidersExact, true, true},
		{providers.TierNearby, prefixAnyProvidersNearby, true, true},
	}
	for _, tc := range cases {
		searcher := &stubSearcher{found: twoProviders(), tier: tc.tier}
		te := newTestEngine(t, WithProviderSearcher(searcher))
		st := &State{Intent: nlu.IntentBook, Reason: "annual physical", LocationZip: "60614"}
		if !tc.deptless {
			st.Department = scheduling.Cardiology
		}
		te.setState(t, "conv", st)

		var resp Response
		if tc.deptless {
			te.Engine.classifier = &stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentBook}}
			resp = te.say(t, "conv", "book me in please")
		} else {
			resp = te.say(t, "conv", "60614")
		}
		if !strings.HasPrefix(resp.Reply, tc.prefix) {
			t.Fatalf("tier %q: reply %q missing prefix %q", tc.tier, resp.Reply, tc.prefix)
		}
		if tc.deptless && !strings.Contains(resp.Reply, "then tell me the department") {
			t.Fatalf("department-less search should ask for a department: %q", resp.Reply)
		}
		if got := te.state(t, "conv").ProviderNeedsDepartment; got != tc.widened {
			t.Fatalf("tier %q: providerNeedsDepartment = %v", tc.tier, got)
		}
	}
}

func TestEmptyProviderSearchAsksForAnotherZip(t *testing.T) {
	te := newTestEngine(t, WithProviderSearcher(&stubSearcher{}))
	te.setState(t, "conv", &State{Intent: nlu.IntentBook, Department: scheduling.Dermatology, AwaitingLocation: true})

	resp := te.say(t, "conv", "99999")
	if resp.Reply != "I couldn't find nearby Dermatology providers. Could you share a different ZIP code?" {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if st := te.state(t, "conv"); !st.AwaitingLocation || st.AwaitingProvider {
		t.Fatalf("unexpected flags: %+v", st)
	}
}

func TestScenarioC_ProviderPickGeneratesSlots(t *testing.T) {
	te := newTestEngine(t, WithProviderSearcher(&stubSearcher{}))
	te.setState(t, "conv-c", &State{
		Intent:           nlu.IntentBook,
		Department:       scheduling.Cardiology,
		AwaitingProvider: true,
		ProviderChoices:  twoProviders(),
	})

	resp := te.say(t, "conv-c", "2")

	if !strings.HasPrefix(resp.Reply, "Here are the next available times with Dr. Omar Fields.") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if len(resp.SuggestedSlots) != menuSize {
		t.Fatalf("expected %d slots, got %d", menuSize, len(resp.SuggestedSlots))
	}
	for i := 1; i < len(resp.SuggestedSlots); i++ {
		if resp.SuggestedSlots[i].StartTime.Before(resp.SuggestedSlots[i-1].StartTime) {
			t.Fatalf("slots not ordered by start time")
		}
	}
	st := te.state(t, "conv-c")
	if st.SelectedProvider != "Dr. Omar Fields" || st.AwaitingProvider || len(st.ProviderChoices) != 0 {
		t.Fatalf("provider menu not consumed: %+v", st)
	}
	if len(st.SuggestedSlotIDs) != menuSize || st.SuggestedSlotIDs[0] != resp.SuggestedSlots[0].ID {
		t.Fatalf("suggested slot ids not stored: %v", st.SuggestedSlotIDs)
	}
	n, err := te.repo.CountSlots(context.Background(), scheduling.Cardiology, "Dr. Omar Fields")
	if err != nil || n != 7*15 {
		t.Fatalf("expected a generated week of slots, got %d (err %v)", n, err)
	}
}

func TestProviderPickWithoutDepartmentDefaults(t *testing.T) {
	te := newTestEngine(t)
	te.setState(t, "conv", &State{AwaitingProvider: true, ProviderChoices: twoProviders()})

	resp := te.say(t, "conv", "1")
	if !strings.HasPrefix(resp.Reply, replyDefaultDeptNote+" Here are the next available times with Dr. Ada Lane.") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if resp.Department != DefaultDepartment {
		t.Fatalf("expected default department, got %q", resp.Department)
	}
}

func TestWidenedProviderPickAsksForDepartment(t *testing.T) {
	te := newTestEngine(t)
	te.setState(t, "conv", &State{
		Department:              scheduling.Cardiology,
		AwaitingProvider:        true,
		ProviderChoices:         twoProviders(),
		ProviderNeedsDepartment: true,
	})

	resp := te.say(t, "conv", "1")
	if resp.Reply != replyAskProviderDept {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if len(resp.SuggestedSlots) != 0 {
		t.Fatalf("slots must not be listed before the department is confirmed")
	}

	resp = te.say(t, "conv", "pediatrics")
	if resp.Department != scheduling.Pediatrics || len(resp.SuggestedSlots) != menuSize {
		t.Fatalf("expected pediatrics slots, got %+v", resp)
	}
	if st := te.state(t, "conv"); st.AwaitingDepartment || st.ProviderNeedsDepartment {
		t.Fatalf("department question not cleared: %+v", st)
	}
}

func TestDepartmentQuestionRepromptsOnUnknown(t *testing.T) {
	te := newTestEngine(t)
	te.setState(t, "conv", &State{AwaitingDepartment: true, SelectedProvider: "Dr. Ada Lane"})

	resp := te.say(t, "conv", "whatever you think")
	if resp.Reply != replyAskDeptOptions {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if !te.state(t, "conv").AwaitingDepartment {
		t.Fatalf("department question should stay open")
	}
}

func TestProviderMenuRepromptsOnOutOfRange(t *testing.T) {
	te := newTestEngine(t)
	te.setState(t, "conv", &State{Department: scheduling.Cardiology, AwaitingProvider: true, ProviderChoices: twoProviders()})

	for _, msg := range []string{"3", "0", "the second one"} {
		resp := te.say(t, "conv", msg)
		if resp.Reply != replyPickProvider {
			t.Fatalf("%q: unexpected reply %q", msg, resp.Reply)
		}
	}
	if st := te.state(t, "conv"); len(st.ProviderChoices) != 2 {
		t.Fatalf("menu should stay intact, got %+v", st.ProviderChoices)
	}
}

func TestScenarioD_SlotPickAsksForReason(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	te.setState(t, "conv-d", &State{Intent: nlu.IntentBook, Department: scheduling.Dermatology, SuggestedSlotIDs: []string{slots[0].ID, slots[1].ID}})

	resp := te.say(t, "conv-d", "1")
	if resp.Reply != replyAskReason {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	st := te.state(t, "conv-d")
	if st.PendingSlotID != slots[0].ID || !st.AwaitingReason {
		t.Fatalf("slot not held for reason: %+v", st)
	}
	if st.AwaitingConfirmation() {
		t.Fatalf("confirmation must wait for the reason")
	}
	if len(st.SuggestedSlotIDs) != 0 {
		t.Fatalf("slot menu should be consumed")
	}

	resp = te.say(t, "conv-d", "itchy rash")
	if !strings.HasPrefix(resp.Reply, "Please confirm booking Dermatology at ") {
		t.Fatalf("expected confirmation prompt, got %q", resp.Reply)
	}
	st = te.state(t, "conv-d")
	if st.Reason != "itchy rash" || !st.AwaitingConfirmation() {
		t.Fatalf("reason not captured: %+v", st)
	}
}

func TestSlotMenuOutOfRangeKeepsMenu(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	te.setState(t, "conv", &State{SuggestedSlotIDs: []string{slots[0].ID}})

	resp := te.say(t, "conv", "4")
	if resp.Reply != replyPickSlot {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if st := te.state(t, "conv"); len(st.SuggestedSlotIDs) != 1 || st.PendingSlotID != "" {
		t.Fatalf("menu should stay intact: %+v", st)
	}
}

func TestSlotPickAlreadyBooked(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	if _, err := te.ledger.Claim(context.Background(), slots[0].ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	te.setState(t, "conv", &State{SuggestedSlotIDs: []string{slots[0].ID}})

	resp := te.say(t, "conv", "1")
	if resp.Reply != replySlotGoneChoose {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if st := te.state(t, "conv"); st.PendingSlotID != "" || len(st.SuggestedSlotIDs) != 0 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestScenarioE_ConfirmationLosesRace(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Cardiology, "Dr. Nguyen")
	te.setState(t, "conv-e", &State{
		Intent:        nlu.IntentBook,
		Department:    scheduling.Cardiology,
		Reason:        "chest tightness",
		PendingSlotID: slots[0].ID,
		PatientPhone:  "3125550100",
		PatientEmail:  "ana@example.com",
	})
	// Another session books the slot first.
	if _, err := scheduling.NewBooker(te.repo, nil).BookForCaller(context.Background(),
		scheduling.PatientDetails{Phone: "7735550199"}, slots[0].ID, "other caller"); err != nil {
		t.Fatalf("competing booking: %v", err)
	}

	resp := te.say(t, "conv-e", "yes")
	if resp.Reply != replySlotGoneAskAnother {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if st := te.state(t, "conv-e"); st.PendingSlotID != "" || st.AwaitingConfirmation() {
		t.Fatalf("pending slot not cleared: %+v", st)
	}
	if _, err := te.repo.FindPatientByPhone(context.Background(), "3125550100"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("no patient should be created for the losing session, got %v", err)
	}
}

func TestConfirmationBooksAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	te := newTestEngine(t, WithNotifier(notifier))
	slots := te.seedSlots(t, scheduling.Cardiology, "Dr. Nguyen")
	te.setState(t, "conv", &State{
		Intent:        nlu.IntentBook,
		Department:    scheduling.Cardiology,
		Reason:        "chest tightness",
		PendingSlotID: slots[0].ID,
	})

	resp := te.say(t, "conv", "yes please")
	if resp.Reply != replyAskPhoneToBook {
		t.Fatalf("expected phone question, got %q", resp.Reply)
	}

	resp = te.say(t, "conv", "my number is 312-555-0100")
	if resp.Reply != replyAskEmailToComplete {
		t.Fatalf("expected email question, got %q", resp.Reply)
	}

	resp = te.say(t, "conv", "ana@example.com")
	if !strings.HasPrefix(resp.Reply, "Thanks. Please confirm booking Cardiology at ") {
		t.Fatalf("expected confirmation prompt, got %q", resp.Reply)
	}

	resp = te.say(t, "conv", "yes")
	if !strings.HasPrefix(resp.Reply, "You're all set. I booked Cardiology at ") {
		t.Fatalf("expected booked reply, got %q", resp.Reply)
	}

	slot, err := te.repo.GetSlot(context.Background(), slots[0].ID)
	if err != nil || !slot.IsBooked {
		t.Fatalf("slot not booked: %+v (err %v)", slot, err)
	}
	patient, err := te.repo.FindPatientByPhone(context.Background(), "3125550100")
	if err != nil {
		t.Fatalf("patient not created: %v", err)
	}
	appts, _ := te.repo.ListBookedAppointments(context.Background(), patient.ID)
	if len(appts) != 1 || appts[0].Reason != "chest tightness" {
		t.Fatalf("unexpected appointments: %+v", appts)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].PatientEmail != "ana@example.com" {
		t.Fatalf("expected one confirmation, got %+v", notifier.sent)
	}
	st := te.state(t, "conv")
	if st.PendingSlotID != "" || len(st.SuggestedSlotIDs) != 0 || st.AwaitingPatient {
		t.Fatalf("booking state not reset: %+v", st)
	}
}

func TestNegativeConfirmationDropsSlot(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Cardiology, "Dr. Nguyen")
	te.setState(t, "conv", &State{Reason: "follow up", PendingSlotID: slots[0].ID, SuggestedSlotIDs: []string{slots[1].ID}})

	resp := te.say(t, "conv", "no thanks")
	if resp.Reply != replyDifferentTime {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	st := te.state(t, "conv")
	if st.PendingSlotID != "" || len(st.SuggestedSlotIDs) != 0 {
		t.Fatalf("unexpected state: %+v", st)
	}
	slot, _ := te.repo.GetSlot(context.Background(), slots[0].ID)
	if slot.IsBooked {
		t.Fatalf("declined slot must stay open")
	}
}

func TestUnclearConfirmationReprompts(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Cardiology, "Dr. Nguyen")
	te.setState(t, "conv", &State{Reason: "follow up", PendingSlotID: slots[0].ID})

	resp := te.say(t, "conv", "hmm maybe")
	if !strings.HasPrefix(resp.Reply, "Please confirm booking Cardiology at ") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if !te.state(t, "conv").AwaitingConfirmation() {
		t.Fatalf("confirmation should stay pending")
	}
}

func bookFor(t *testing.T, te testEngine, phone string, slot scheduling.Slot) scheduling.BookingResult {
	t.Helper()
	res, err := te.booker.BookForCaller(context.Background(), scheduling.PatientDetails{Phone: phone, Name: "Ana", Email: "ana@example.com"}, slot.ID, "checkup visit")
	if err != nil || !res.Booked() {
		t.Fatalf("book: %+v %v", res, err)
	}
	return res
}

func TestScenarioF_CancelFromMenu(t *testing.T) {
	classifier := &stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentCancel}}
	te := newTestEngine(t, WithClassifier(classifier))
	derm := te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	cardio := te.seedSlots(t, scheduling.Cardiology, "Dr. Nguyen")
	first := bookFor(t, te, "3125550100", derm[0])
	second := bookFor(t, te, "3125550100", cardio[0])
	te.setState(t, "conv-f", &State{PatientPhone: "3125550100"})

	resp := te.say(t, "conv-f", "cancel")
	if !strings.HasPrefix(resp.Reply, "Which appointment should I cancel? 1) Dermatology at ") ||
		!strings.Contains(resp.Reply, " 2) Cardiology at ") {
		t.Fatalf("unexpected menu %q", resp.Reply)
	}
	st := te.state(t, "conv-f")
	if len(st.LastAppointmentIDs) != 2 || st.LastAppointmentIDs[0] != first.Appointment.ID || st.LastAppointmentIDs[1] != second.Appointment.ID {
		t.Fatalf("unexpected appointment menu: %v", st.LastAppointmentIDs)
	}

	resp = te.say(t, "conv-f", "1")
	if resp.Reply != replyCanceled || resp.Department != scheduling.Dermatology {
		t.Fatalf("unexpected reply %+v", resp)
	}
	appt, _ := te.repo.GetAppointment(context.Background(), first.Appointment.ID)
	if appt.Status != scheduling.StatusCanceled {
		t.Fatalf("appointment not canceled: %s", appt.Status)
	}
	slot, _ := te.repo.GetSlot(context.Background(), derm[0].ID)
	if slot.IsBooked {
		t.Fatalf("canceled slot should be released")
	}
	other, _ := te.repo.GetAppointment(context.Background(), second.Appointment.ID)
	if other.Status != scheduling.StatusBooked {
		t.Fatalf("other appointment must stay booked")
	}
	if st := te.state(t, "conv-f"); len(st.LastAppointmentIDs) != 0 {
		t.Fatalf("appointment menu not consumed")
	}
}

func TestAppointmentMenuRepromptsOnBadInput(t *testing.T) {
	te := newTestEngine(t)
	te.setState(t, "conv", &State{Intent: nlu.IntentCancel, LastAppointmentIDs: []string{"a1", "a2"}})

	for _, msg := range []string{"5", "the first"} {
		if resp := te.say(t, "conv", msg); resp.Reply != replyPickAppointment {
			t.Fatalf("%q: unexpected reply %q", msg, resp.Reply)
		}
	}
	if st := te.state(t, "conv"); len(st.LastAppointmentIDs) != 2 {
		t.Fatalf("menu should stay intact")
	}
}

func TestStaleAppointmentSelection(t *testing.T) {
	te := newTestEngine(t)
	te.setState(t, "conv", &State{Intent: nlu.IntentCancel, LastAppointmentIDs: []string{"missing"}})

	if resp := te.say(t, "conv", "1"); resp.Reply != replyAppointmentMissing {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
}

func TestRescheduleFlow(t *testing.T) {
	classifier := &stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentReschedule}}
	te := newTestEngine(t, WithClassifier(classifier))
	slots := te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	booked := bookFor(t, te, "3125550100", slots[0])

	resp := te.say(t, "conv", "I need to move my appointment")
	if resp.Reply != replyAskPhoneSure {
		t.Fatalf("expected phone question, got %q", resp.Reply)
	}
	resp = te.say(t, "conv", "3125550100")
	if !strings.HasPrefix(resp.Reply, "Which appointment should we reschedule? 1) Dermatology at ") {
		t.Fatalf("unexpected menu %q", resp.Reply)
	}
	resp = te.say(t, "conv", "1")
	if !strings.HasPrefix(resp.Reply, "Here are the next available Dermatology times. Select one and I will confirm the reschedule.") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if te.state(t, "conv").PendingAppointmentID != booked.Appointment.ID {
		t.Fatalf("pending appointment not set")
	}

	newSlotID := resp.SuggestedSlots[0].ID
	resp = te.say(t, "conv", "1")
	if !strings.HasPrefix(resp.Reply, "You selected Dermatology at ") {
		t.Fatalf("reschedule should skip the reason question, got %q", resp.Reply)
	}
	resp = te.say(t, "conv", "yes")
	if !strings.HasPrefix(resp.Reply, "You're all set.") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}

	appt, _ := te.repo.GetAppointment(context.Background(), booked.Appointment.ID)
	if appt.SlotID != newSlotID || appt.Reason != "checkup visit" {
		t.Fatalf("appointment not moved: %+v", appt)
	}
	old, _ := te.repo.GetSlot(context.Background(), slots[0].ID)
	if old.IsBooked {
		t.Fatalf("old slot should be released")
	}
	if st := te.state(t, "conv"); st.PendingAppointmentID != "" {
		t.Fatalf("pending appointment not cleared")
	}
}

func TestLostRescheduleRaceThenNewBooking(t *testing.T) {
	te := newTestEngine(t)
	cardio := te.seedSlots(t, scheduling.Cardiology, "Dr. Nguyen")
	te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	original := bookFor(t, te, "3125550100", cardio[0])
	bookFor(t, te, "7735550199", cardio[1])
	te.setState(t, "conv", &State{
		Intent:               nlu.IntentReschedule,
		Department:           scheduling.Cardiology,
		PendingAppointmentID: original.Appointment.ID,
		PendingSlotID:        cardio[1].ID,
		PatientPhone:         "3125550100",
	})

	if resp := te.say(t, "conv", "yes"); resp.Reply != replySlotGoneAskAnother {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	resp := te.say(t, "conv", "I need a dermatology appointment for an itchy rash")
	if !strings.HasPrefix(resp.Reply, "Here are the next available Dermatology times. Select a slot") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if st := te.state(t, "conv"); st.PendingAppointmentID != "" {
		t.Fatalf("new booking must not carry the abandoned reschedule: %+v", st)
	}
	if resp := te.say(t, "conv", "1"); !strings.HasPrefix(resp.Reply, "You selected Dermatology at ") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if resp := te.say(t, "conv", "yes"); !strings.HasPrefix(resp.Reply, "You're all set. I booked Dermatology at ") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}

	appts, err := te.repo.ListBookedAppointments(context.Background(), original.Patient.ID)
	if err != nil || len(appts) != 2 {
		t.Fatalf("expected two booked appointments, got %+v (err %v)", appts, err)
	}
	appt, _ := te.repo.GetAppointment(context.Background(), original.Appointment.ID)
	if appt.SlotID != cardio[0].ID || appt.Status != scheduling.StatusBooked {
		t.Fatalf("cardiology appointment moved: %+v", appt)
	}
	slot, _ := te.repo.GetSlot(context.Background(), cardio[0].ID)
	if !slot.IsBooked {
		t.Fatalf("cardiology slot should stay booked")
	}
}

func TestRescheduleDeclineOffersAnotherTime(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	booked := bookFor(t, te, "3125550100", slots[0])
	te.setState(t, "conv", &State{
		Intent:               nlu.IntentReschedule,
		Department:           scheduling.Dermatology,
		PendingAppointmentID: booked.Appointment.ID,
		PendingSlotID:        slots[1].ID,
		PatientPhone:         "3125550100",
	})

	if resp := te.say(t, "conv", "no"); resp.Reply != replyDifferentTime {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	st := te.state(t, "conv")
	if st.PendingSlotID != "" || st.PendingAppointmentID != booked.Appointment.ID {
		t.Fatalf("decline should keep the reschedule open: %+v", st)
	}

	resp := te.say(t, "conv", "yes")
	if !strings.HasPrefix(resp.Reply, "Here are the next available Dermatology times. Select one and I will confirm the reschedule.") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	newSlotID := resp.SuggestedSlots[0].ID
	if resp := te.say(t, "conv", "1"); !strings.HasPrefix(resp.Reply, "You selected Dermatology at ") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if resp := te.say(t, "conv", "yes"); !strings.HasPrefix(resp.Reply, "You're all set.") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	appt, _ := te.repo.GetAppointment(context.Background(), booked.Appointment.ID)
	if appt.SlotID != newSlotID {
		t.Fatalf("appointment not moved: %+v", appt)
	}
}

func TestAppointmentMenuIgnoredAfterIntentChange(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Dermatology, "Dr. Patel")
	booked := bookFor(t, te, "3125550100", slots[0])
	te.setState(t, "conv", &State{Intent: nlu.IntentFAQ, LastAppointmentIDs: []string{booked.Appointment.ID}})

	if resp := te.say(t, "conv", "1"); resp.Reply != replyCapabilities {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	appt, _ := te.repo.GetAppointment(context.Background(), booked.Appointment.ID)
	if appt.Status != scheduling.StatusBooked {
		t.Fatalf("appointment should be untouched: %+v", appt)
	}
}

func TestCancelWithUnknownPhone(t *testing.T) {
	te := newTestEngine(t, WithClassifier(&stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentCancel}}))
	te.setState(t, "conv", &State{PatientPhone: "3125550100"})

	if resp := te.say(t, "conv", "cancel"); resp.Reply != replyNoPatientForPhone {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
}

func TestCancelWithNoAppointments(t *testing.T) {
	te := newTestEngine(t, WithClassifier(&stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentCancel}}))
	if _, err := te.booker.EnsurePatient(context.Background(), scheduling.PatientDetails{Phone: "3125550100"}); err != nil {
		t.Fatalf("ensure patient: %v", err)
	}
	te.setState(t, "conv", &State{PatientPhone: "3125550100"})

	if resp := te.say(t, "conv", "cancel"); resp.Reply != "I don't see any upcoming appointments to cancel." {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
}

func TestUrgentOpensCase(t *testing.T) {
	urgent := &stubUrgent{}
	te := newTestEngine(t, WithUrgentRecorder(urgent))

	resp := te.say(t, "conv", "I have severe chest pain right now")
	if resp.Intent != nlu.IntentUrgent || resp.Reply != replyUrgent {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.UrgentCaseID != "case-1" || len(urgent.texts) != 1 {
		t.Fatalf("urgent case not opened: %+v", resp)
	}
}

func TestUrgentRecorderFailureStillReplies(t *testing.T) {
	te := newTestEngine(t, WithUrgentRecorder(&stubUrgent{err: errors.New("db down")}))

	resp := te.say(t, "conv", "I have severe chest pain right now")
	if resp.Reply != replyUrgent || resp.UrgentCaseID != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestBookWithoutReasonAsksForReason(t *testing.T) {
	te := newTestEngine(t, WithClassifier(&stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentBook, Department: scheduling.Pediatrics}}))

	resp := te.say(t, "conv", "book")
	if resp.Reply != replyAskReason {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if st := te.state(t, "conv"); !st.AwaitingReason || st.Department != scheduling.Pediatrics {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestBookWithoutDepartmentAsksForOne(t *testing.T) {
	te := newTestEngine(t, WithClassifier(&stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentBook, Reason: "feeling unwell lately"}}))

	if resp := te.say(t, "conv", "I want to see someone"); resp.Reply != replyAskDeptToHelp {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
}

func TestAffirmativeBookListsDepartmentSlots(t *testing.T) {
	te := newTestEngine(t)
	te.seedSlots(t, scheduling.Orthopedics, "Dr. Shah")
	te.setState(t, "conv", &State{Intent: nlu.IntentBook, Department: scheduling.Orthopedics})

	resp := te.say(t, "conv", "yes")
	if !strings.HasPrefix(resp.Reply, "Here are the next available Orthopedics times. Select a slot and I will confirm before booking. 1) ") {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if len(te.state(t, "conv").SuggestedSlotIDs) != menuSize {
		t.Fatalf("slot menu not stored")
	}
}

func TestSelectedSlotHintHoldsSlot(t *testing.T) {
	te := newTestEngine(t)
	slots := te.seedSlots(t, scheduling.Cardiology, "Dr. Nguyen")

	resp, err := te.HandleTurn(context.Background(), Turn{
		ConversationID: "conv",
		Message:        "this one",
		SelectedSlotID: slots[2].ID,
	})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp.Intent != nlu.IntentBook || resp.Reply != replyAskReason {
		t.Fatalf("unexpected response %+v", resp)
	}
	if st := te.state(t, "conv"); st.PendingSlotID != slots[2].ID {
		t.Fatalf("hinted slot not held")
	}
}

func TestOtherAndFAQReplies(t *testing.T) {
	te := newTestEngine(t)
	if resp := te.say(t, "conv", "hello there"); resp.Reply != replyCapabilities || resp.Intent != nlu.IntentOther {
		t.Fatalf("unexpected response %+v", resp)
	}
	te.Engine.classifier = &stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentFAQ}}
	if resp := te.say(t, "conv", "what are your hours"); resp.Reply != replyFAQ {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
}

func TestHintsAndExtractionUpdateFrame(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.HandleTurn(context.Background(), Turn{
		ConversationID: "conv",
		Message:        "reach me at new@example.com or 773 555 0199",
		PatientPhone:   "3125550100",
		PatientName:    "Ana",
	})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	st := te.state(t, "conv")
	if st.PatientPhone != "7735550199" || st.PatientEmail != "new@example.com" || st.PatientName != "Ana" {
		t.Fatalf("unexpected identity fields: %+v", st)
	}
}

func TestTranscriptRecordsBothSides(t *testing.T) {
	transcript := &recordingTranscript{}
	te := newTestEngine(t, WithTranscript(transcript))
	te.say(t, "conv", "hello")
	if strings.Join(transcript.roles, ",") != "user,assistant" {
		t.Fatalf("unexpected transcript roles %v", transcript.roles)
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) Save(context.Context, string, *State) error { return errors.New("redis down") }

func TestHandleTurnSurfacesStoreErrors(t *testing.T) {
	repo := scheduling.NewMemoryRepository()
	e := NewEngine(failingStore{NewMemoryStore()}, repo, nil, nil, nil)
	if _, err := e.HandleTurn(context.Background(), Turn{Message: "hello"}); err == nil {
		t.Fatalf("expected save error")
	}
}

type brokenRepo struct{ *scheduling.MemoryRepository }

func (brokenRepo) FindPatientByPhone(context.Context, string) (*scheduling.Patient, error) {
	return nil, errors.New("connection reset")
}

func TestStepFailureRepliesGracefully(t *testing.T) {
	repo := brokenRepo{scheduling.NewMemoryRepository()}
	store := NewMemoryStore()
	e := NewEngine(store, repo, nil, nil, nil, WithClassifier(&stubClassifier{result: nlu.IntentResult{Intent: nlu.IntentCancel}}))
	if err := store.Save(context.Background(), "conv", &State{PatientPhone: "3125550100"}); err != nil {
		t.Fatal(err)
	}

	resp, err := e.HandleTurn(context.Background(), Turn{ConversationID: "conv", Message: "cancel"})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp.Reply != replyTryAgain {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
}
