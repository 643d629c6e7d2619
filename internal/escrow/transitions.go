package escrow

import (
	"escrow-ledger-go/internal/models"
	"escrow-ledger-go/internal/store"
)

// allowed lists every legal move of an escrow payment. DISTRIBUTED is
// entered only through plan execution, which claims the payment with its
// own conditional update.
var allowed = map[models.EscrowStatus][]models.EscrowStatus{
	models.EscrowPending:     {models.EscrowHeld},
	models.EscrowHeld:        {models.EscrowDistributed, models.EscrowRefunded, models.EscrowDisputed},
	models.EscrowDistributed: {models.EscrowDisputed},
	models.EscrowDisputed:    {models.EscrowRefunded, models.EscrowHeld, models.EscrowDistributed},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to models.EscrowStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(p *models.EscrowPayment, to models.EscrowStatus) error {
	if !CanTransition(p.Status, to) {
		return &store.InvalidTransitionError{Entity: "escrow_payment", Id: p.Id, From: string(p.Status), To: string(to)}
	}
	return nil
}
