package entity

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

func newTestTransaction(t *testing.T, drafts []MilestoneDraft) (*Transaction, uuid.UUID, uuid.UUID) {
	t.Helper()
	buyerID := uuid.New()
	sellerID := uuid.New()
	amount, _ := valueobject.NewMoney(10000, "RUB")
	tr, err := NewTransaction(buyerID, sellerID, buyerID, "Разработка сайта", "лендинг и каталог", amount, 3, drafts)
	if err != nil {
		t.Fatalf("NewTransaction вернул ошибку: %v", err)
	}
	return tr, buyerID, sellerID
}

func twoMilestones() []MilestoneDraft {
	return []MilestoneDraft{
		{Title: "Макет", Amount: 6000, Deliverables: []string{"главная страница", "каталог"}},
		{Title: "Вёрстка", Amount: 4000},
	}
}

func TestNewTransactionValidation(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	amount, _ := valueobject.NewMoney(10000, "RUB")

	if _, err := NewTransaction(buyerID, buyerID, buyerID, "Сделка", "", amount, 3, nil); !apperror.IsValidation(err) {
		t.Fatalf("покупатель равен продавцу, ожидали ошибку валидации, получили %v", err)
	}
	if _, err := NewTransaction(buyerID, sellerID, uuid.New(), "Сделка", "", amount, 3, nil); !apperror.IsValidation(err) {
		t.Fatalf("сторонний инициатор, ожидали ошибку валидации, получили %v", err)
	}
	if _, err := NewTransaction(buyerID, sellerID, buyerID, "", "", amount, 3, nil); !apperror.IsValidation(err) {
		t.Fatalf("пустое название, ожидали ошибку валидации, получили %v", err)
	}

	// Сумма этапов обязана сходиться с суммой сделки.
	drafts := []MilestoneDraft{{Title: "Этап", Amount: 5000}}
	if _, err := NewTransaction(buyerID, sellerID, buyerID, "Сделка", "", amount, 3, drafts); !apperror.IsValidation(err) {
		t.Fatalf("расхождение сумм, ожидали ошибку валидации, получили %v", err)
	}
}

func TestTransactionHappyPath(t *testing.T) {
	tr, buyerID, sellerID := newTestTransaction(t, twoMilestones())
	buyer := Actor{ID: buyerID}
	seller := Actor{ID: sellerID}

	if tr.Status != valueobject.TransactionStatusPending {
		t.Fatalf("новая сделка должна быть pending, получили %s", tr.Status)
	}
	if tr.HeldBalance() != 0 {
		t.Fatalf("до оплаты удержание должно быть нулевым, получили %d", tr.HeldBalance())
	}

	if err := tr.Accept(seller); err != nil {
		t.Fatalf("Accept вернул ошибку: %v", err)
	}
	if err := tr.Fund(buyer); err != nil {
		t.Fatalf("Fund вернул ошибку: %v", err)
	}
	if tr.HeldBalance() != 10000 {
		t.Fatalf("после оплаты удержание 10000, получили %d", tr.HeldBalance())
	}

	first := tr.Milestones[0]
	second := tr.Milestones[1]

	if err := tr.StartMilestone(first.ID, seller); err != nil {
		t.Fatalf("StartMilestone вернул ошибку: %v", err)
	}
	if err := tr.SubmitMilestone(first.ID, seller); err != nil {
		t.Fatalf("SubmitMilestone вернул ошибку: %v", err)
	}
	if err := tr.ApproveMilestone(first.ID, buyer); err != nil {
		t.Fatalf("ApproveMilestone вернул ошибку: %v", err)
	}
	if _, err := tr.ReleaseMilestone(first.ID, buyer); err != nil {
		t.Fatalf("ReleaseMilestone вернул ошибку: %v", err)
	}
	if tr.ReleasedBalance() != 6000 || tr.HeldBalance() != 4000 {
		t.Fatalf("после выплаты этапа: выплачено %d, удержано %d", tr.ReleasedBalance(), tr.HeldBalance())
	}
	if tr.Status != valueobject.TransactionStatusFunded {
		t.Fatalf("выплата этапа не меняет статус сделки, получили %s", tr.Status)
	}

	// Сдача блокируется, пока второй этап не одобрен.
	if err := tr.Deliver(seller); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("сдача при неодобренном этапе, ожидали INVALID_TRANSITION, получили %v", err)
	}

	if err := tr.SubmitMilestone(second.ID, seller); err != nil {
		t.Fatalf("SubmitMilestone вернул ошибку: %v", err)
	}
	if err := tr.ApproveMilestone(second.ID, buyer); err != nil {
		t.Fatalf("ApproveMilestone вернул ошибку: %v", err)
	}
	if err := tr.Deliver(seller); err != nil {
		t.Fatalf("Deliver вернул ошибку: %v", err)
	}
	if tr.DeliveredAt == nil {
		t.Fatal("DeliveredAt должен быть установлен")
	}

	if err := tr.Release(buyer); err != nil {
		t.Fatalf("Release вернул ошибку: %v", err)
	}
	if tr.Status != valueobject.TransactionStatusCompleted {
		t.Fatalf("ожидали completed, получили %s", tr.Status)
	}
	if tr.ReleasedBalance() != 10000 || tr.HeldBalance() != 0 {
		t.Fatalf("после завершения: выплачено %d, удержано %d", tr.ReleasedBalance(), tr.HeldBalance())
	}
	if tr.ClosedAt == nil {
		t.Fatal("ClosedAt должен быть установлен")
	}
}

func TestTransactionAcceptRules(t *testing.T) {
	tr, buyerID, sellerID := newTestTransaction(t, nil)

	// Инициатор не принимает собственную сделку.
	if err := tr.Accept(Actor{ID: buyerID}); !apperror.IsCode(err, apperror.ErrCodeUnauthorized) {
		t.Fatalf("ожидали UNAUTHORIZED, получили %v", err)
	}
	if err := tr.Accept(Actor{ID: uuid.New()}); !apperror.IsCode(err, apperror.ErrCodeUnauthorized) {
		t.Fatalf("посторонний актор, ожидали UNAUTHORIZED, получили %v", err)
	}

	if err := tr.Accept(Actor{ID: sellerID}); err != nil {
		t.Fatalf("Accept вернул ошибку: %v", err)
	}
	if err := tr.Accept(Actor{ID: sellerID}); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("повторный Accept, ожидали INVALID_TRANSITION, получили %v", err)
	}
}

func TestTransactionCancelOnlyBeforeFunding(t *testing.T) {
	tr, buyerID, sellerID := newTestTransaction(t, nil)

	if err := tr.Accept(Actor{ID: sellerID}); err != nil {
		t.Fatalf("Accept вернул ошибку: %v", err)
	}
	if err := tr.Fund(Actor{ID: buyerID}); err != nil {
		t.Fatalf("Fund вернул ошибку: %v", err)
	}

	// После оплаты возврат возможен только через спор.
	if err := tr.Cancel(Actor{ID: buyerID}); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("отмена оплаченной сделки, ожидали INVALID_TRANSITION, получили %v", err)
	}
}

func TestTransactionNoSkippedStates(t *testing.T) {
	tr, buyerID, sellerID := newTestTransaction(t, nil)

	if err := tr.Fund(Actor{ID: buyerID}); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("оплата до принятия, ожидали INVALID_TRANSITION, получили %v", err)
	}
	if err := tr.Deliver(Actor{ID: sellerID}); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("сдача до оплаты, ожидали INVALID_TRANSITION, получили %v", err)
	}
	if err := tr.Release(Actor{ID: buyerID}); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("завершение из pending, ожидали INVALID_TRANSITION, получили %v", err)
	}
}

func TestMilestoneReleaseAccounting(t *testing.T) {
	tr, buyerID, sellerID := newTestTransaction(t, twoMilestones())
	buyer := Actor{ID: buyerID}
	seller := Actor{ID: sellerID}

	if err := tr.Accept(seller); err != nil {
		t.Fatalf("Accept вернул ошибку: %v", err)
	}
	if err := tr.Fund(buyer); err != nil {
		t.Fatalf("Fund вернул ошибку: %v", err)
	}

	first := tr.Milestones[0]
	if err := tr.SubmitMilestone(first.ID, seller); err != nil {
		t.Fatalf("SubmitMilestone вернул ошибку: %v", err)
	}

	// Выплатить можно только одобренный этап, и только покупателю.
	if _, err := tr.ReleaseMilestone(first.ID, buyer); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("выплата неодобренного этапа, ожидали INVALID_TRANSITION, получили %v", err)
	}
	if err := tr.ApproveMilestone(first.ID, buyer); err != nil {
		t.Fatalf("ApproveMilestone вернул ошибку: %v", err)
	}
	if _, err := tr.ReleaseMilestone(first.ID, seller); !apperror.IsCode(err, apperror.ErrCodeUnauthorized) {
		t.Fatalf("выплата продавцом, ожидали UNAUTHORIZED, получили %v", err)
	}

	m, err := tr.ReleaseMilestone(first.ID, buyer)
	if err != nil {
		t.Fatalf("ReleaseMilestone вернул ошибку: %v", err)
	}
	if m.Status != valueobject.MilestoneStatusReleased || m.ReleasedAt == nil {
		t.Fatalf("этап должен быть released с отметкой времени: %+v", m)
	}

	// Повторная выплата того же этапа отклоняется.
	if _, err := tr.ReleaseMilestone(first.ID, buyer); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("повторная выплата, ожидали INVALID_TRANSITION, получили %v", err)
	}
}

func TestCanReleaseOverflow(t *testing.T) {
	tr, _, _ := newTestTransaction(t, nil)
	tr.Status = valueobject.TransactionStatusFunded
	tr.ReleasedAmount = 9000

	if err := tr.CanRelease(1000); err != nil {
		t.Fatalf("выплата в пределах суммы: %v", err)
	}
	if err := tr.CanRelease(1001); !apperror.IsCode(err, apperror.ErrCodeOverRelease) {
		t.Fatalf("превышение суммы, ожидали OVER_RELEASE, получили %v", err)
	}
	if err := tr.CanRelease(0); !apperror.IsValidation(err) {
		t.Fatalf("нулевая выплата, ожидали ошибку валидации, получили %v", err)
	}
}

// Команды в случайном порядке. Большинство отклоняется таблицей переходов,
// но выплаченная сумма никогда не превышает сумму сделки и остаток на
// удержании не уходит в минус.
func TestTransactionReleasedNeverExceedsAmount(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(3)
		remaining := int64(10000)
		drafts := make([]MilestoneDraft, 0, n)
		for i := 0; i < n; i++ {
			amount := remaining
			if i < n-1 {
				amount = 1 + rng.Int63n(remaining-int64(n-1-i))
			}
			drafts = append(drafts, MilestoneDraft{Title: fmt.Sprintf("Этап %d", i+1), Amount: amount})
			remaining -= amount
		}

		tr, buyerID, sellerID := newTestTransaction(t, drafts)
		buyer := Actor{ID: buyerID}
		seller := Actor{ID: sellerID}

		for step := 0; step < 80; step++ {
			switch rng.Intn(10) {
			case 0:
				_ = tr.Accept(seller)
			case 1:
				_ = tr.Fund(buyer)
			case 2:
				_ = tr.Deliver(seller)
			case 3:
				_ = tr.Release(buyer)
			case 4:
				_ = tr.Cancel(buyer)
			case 5:
				_ = tr.RaiseDispute(buyer)
			case 6:
				resolutions := []valueobject.DisputeResolution{
					valueobject.DisputeResolutionRelease,
					valueobject.DisputeResolutionRefund,
					valueobject.DisputeResolutionSplit,
				}
				_ = tr.ApplyResolution(resolutions[rng.Intn(len(resolutions))], rng.Int63n(12001)-1000)
			default:
				ms := tr.Milestones[rng.Intn(len(tr.Milestones))]
				switch rng.Intn(4) {
				case 0:
					_ = tr.StartMilestone(ms.ID, seller)
				case 1:
					_ = tr.SubmitMilestone(ms.ID, seller)
				case 2:
					_ = tr.ApproveMilestone(ms.ID, buyer)
				case 3:
					_, _ = tr.ReleaseMilestone(ms.ID, buyer)
				}
			}

			released := tr.ReleasedBalance()
			if released < 0 || released > tr.Amount.Amount {
				t.Fatalf("раунд %d, шаг %d: выплачено %d при сумме сделки %d", round, step, released, tr.Amount.Amount)
			}
			if held := tr.HeldBalance(); held < 0 {
				t.Fatalf("раунд %d, шаг %d: отрицательный остаток %d", round, step, held)
			}
		}
	}
}

func TestDisputeResolutions(t *testing.T) {
	setup := func() (*Transaction, Actor, Actor) {
		tr, buyerID, sellerID := newTestTransaction(t, nil)
		buyer := Actor{ID: buyerID}
		seller := Actor{ID: sellerID}
		if err := tr.Accept(seller); err != nil {
			t.Fatalf("Accept вернул ошибку: %v", err)
		}
		if err := tr.Fund(buyer); err != nil {
			t.Fatalf("Fund вернул ошибку: %v", err)
		}
		if err := tr.RaiseDispute(buyer); err != nil {
			t.Fatalf("RaiseDispute вернул ошибку: %v", err)
		}
		return tr, buyer, seller
	}

	t.Run("release отдаёт продавцу весь остаток", func(t *testing.T) {
		tr, _, _ := setup()
		if err := tr.ApplyResolution(valueobject.DisputeResolutionRelease, 0); err != nil {
			t.Fatalf("ApplyResolution вернул ошибку: %v", err)
		}
		if tr.Status != valueobject.TransactionStatusCompleted || tr.ReleasedBalance() != 10000 {
			t.Fatalf("ожидали completed с полной выплатой: %s, %d", tr.Status, tr.ReleasedBalance())
		}
	})

	t.Run("refund возвращает средства покупателю", func(t *testing.T) {
		tr, _, _ := setup()
		if err := tr.ApplyResolution(valueobject.DisputeResolutionRefund, 0); err != nil {
			t.Fatalf("ApplyResolution вернул ошибку: %v", err)
		}
		if tr.Status != valueobject.TransactionStatusRefunded || tr.ReleasedBalance() != 0 {
			t.Fatalf("ожидали refunded без выплат: %s, %d", tr.Status, tr.ReleasedBalance())
		}
	})

	t.Run("split делит остаток по заданной сумме", func(t *testing.T) {
		tr, _, _ := setup()
		if err := tr.ApplyResolution(valueobject.DisputeResolutionSplit, 3000); err != nil {
			t.Fatalf("ApplyResolution вернул ошибку: %v", err)
		}
		if tr.Status != valueobject.TransactionStatusCompleted || tr.ReleasedBalance() != 3000 {
			t.Fatalf("ожидали completed с частичной выплатой: %s, %d", tr.Status, tr.ReleasedBalance())
		}
	})

	t.Run("split сверх остатка отклоняется", func(t *testing.T) {
		tr, _, _ := setup()
		if err := tr.ApplyResolution(valueobject.DisputeResolutionSplit, 10001); !apperror.IsCode(err, apperror.ErrCodeOverRelease) {
			t.Fatalf("ожидали OVER_RELEASE, получили %v", err)
		}
	})

	t.Run("решение вне спора отклоняется", func(t *testing.T) {
		tr, _, _ := newTestTransaction(t, nil)
		if err := tr.ApplyResolution(valueobject.DisputeResolutionRefund, 0); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
			t.Fatalf("ожидали INVALID_TRANSITION, получили %v", err)
		}
	})
}

func TestRaiseDisputeOnlyWhileHeld(t *testing.T) {
	tr, buyerID, _ := newTestTransaction(t, nil)
	if err := tr.RaiseDispute(Actor{ID: buyerID}); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("спор по pending, ожидали INVALID_TRANSITION, получили %v", err)
	}
	if err := tr.RaiseDispute(Actor{ID: uuid.New()}); !apperror.IsCode(err, apperror.ErrCodeUnauthorized) {
		t.Fatalf("спор посторонним, ожидали UNAUTHORIZED, получили %v", err)
	}
}

func TestUpdateMilestoneBeforeFunding(t *testing.T) {
	tr, buyerID, sellerID := newTestTransaction(t, twoMilestones())
	first := tr.Milestones[0]

	// Правка только инициатором и только с сохранением общей суммы.
	if err := tr.UpdateMilestone(first.ID, Actor{ID: sellerID}, "Макет v2", "", 6000); !apperror.IsCode(err, apperror.ErrCodeUnauthorized) {
		t.Fatalf("правка не инициатором, ожидали UNAUTHORIZED, получили %v", err)
	}
	if err := tr.UpdateMilestone(first.ID, Actor{ID: buyerID}, "Макет v2", "", 7000); !apperror.IsValidation(err) {
		t.Fatalf("расхождение сумм, ожидали ошибку валидации, получили %v", err)
	}
	if err := tr.UpdateMilestone(first.ID, Actor{ID: buyerID}, "Макет v2", "с адаптивом", 6000); err != nil {
		t.Fatalf("UpdateMilestone вернул ошибку: %v", err)
	}
	if first.Title != "Макет v2" || first.Description != "с адаптивом" {
		t.Fatalf("правка не применилась: %+v", first)
	}

	if err := tr.Accept(Actor{ID: sellerID}); err != nil {
		t.Fatalf("Accept вернул ошибку: %v", err)
	}
	if err := tr.Fund(Actor{ID: buyerID}); err != nil {
		t.Fatalf("Fund вернул ошибку: %v", err)
	}
	if err := tr.UpdateMilestone(first.ID, Actor{ID: buyerID}, "Макет v3", "", 6000); !apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
		t.Fatalf("правка после оплаты, ожидали INVALID_TRANSITION, получили %v", err)
	}
}

func TestToggleDeliverableAndNotes(t *testing.T) {
	tr, buyerID, sellerID := newTestTransaction(t, twoMilestones())
	first := tr.Milestones[0]
	item := first.Deliverables[0]

	d, err := tr.ToggleDeliverable(first.ID, item.ID, Actor{ID: sellerID})
	if err != nil {
		t.Fatalf("ToggleDeliverable вернул ошибку: %v", err)
	}
	if !d.Completed {
		t.Fatal("пункт должен стать выполненным")
	}
	if _, err := tr.ToggleDeliverable(first.ID, item.ID, Actor{ID: buyerID}); err != nil {
		t.Fatalf("повторное переключение вернуло ошибку: %v", err)
	}
	if item.Completed {
		t.Fatal("повторное переключение должно снять отметку")
	}
	if _, err := tr.ToggleDeliverable(first.ID, item.ID, Actor{ID: uuid.New()}); !apperror.IsCode(err, apperror.ErrCodeUnauthorized) {
		t.Fatalf("посторонний актор, ожидали UNAUTHORIZED, получили %v", err)
	}
	if _, err := tr.ToggleDeliverable(first.ID, uuid.New(), Actor{ID: buyerID}); !apperror.IsNotFound(err) {
		t.Fatalf("неизвестный пункт, ожидали NOT_FOUND, получили %v", err)
	}

	note, err := tr.AddNote(first.ID, Actor{ID: buyerID}, "уточните шрифты")
	if err != nil {
		t.Fatalf("AddNote вернул ошибку: %v", err)
	}
	if note.AuthorID != buyerID || note.Content != "уточните шрифты" {
		t.Fatalf("неожиданный комментарий: %+v", note)
	}
	if _, err := tr.AddNote(first.ID, Actor{ID: buyerID}, ""); !apperror.IsValidation(err) {
		t.Fatalf("пустой комментарий, ожидали ошибку валидации, получили %v", err)
	}
}

func TestInspectionDeadline(t *testing.T) {
	tr, _, _ := newTestTransaction(t, nil)

	if tr.InspectionDeadline() != nil {
		t.Fatal("до сдачи дедлайна нет")
	}
	if tr.InspectionExpired(time.Now()) {
		t.Fatal("до сдачи срок не может истечь")
	}

	delivered := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.Status = valueobject.TransactionStatusDelivered
	tr.DeliveredAt = &delivered

	deadline := tr.InspectionDeadline()
	if deadline == nil {
		t.Fatal("после сдачи дедлайн обязателен")
	}
	want := delivered.Add(3 * 24 * time.Hour)
	if !deadline.Equal(want) {
		t.Fatalf("ожидали %s, получили %s", want, deadline)
	}

	if tr.InspectionExpired(want.Add(-time.Second)) {
		t.Fatal("срок ещё не истёк")
	}
	if !tr.InspectionExpired(want) {
		t.Fatal("на границе срок считается истёкшим")
	}

	// Для завершённой сделки срок не проверяется.
	tr.Status = valueobject.TransactionStatusCompleted
	if tr.InspectionExpired(want.Add(time.Hour)) {
		t.Fatal("истечение применимо только к delivered")
	}
}
