package events

import (
	"encoding/json"
	"time"

	"github.com/warp/paa-engine/budget"
)

// UsageLine is the part of an expense line an activity template remembers.
type UsageLine struct {
	KeyActivity       string `json:"key_activity"`
	MeansType         string `json:"means_type"`
	NomenclatureCode  string `json:"nomenclature_code,omitempty"`
	NomenclatureLabel string `json:"nomenclature_label,omitempty"`
	FinancingCategory string `json:"financing_category"`
}

// TemplateUsageMessage reports the expense lines a center just saved.
// Amounts are not carried: templates only count usage.
type TemplateUsageMessage struct {
	CenterID  string      `json:"center_id"`
	BudgetID  string      `json:"budget_id,omitempty"`
	Lines     []UsageLine `json:"lines"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewTemplateUsageMessage creates a message for the given lines
func NewTemplateUsageMessage(centerID string, lines []budget.ExpenseLine) *TemplateUsageMessage {
	msg := &TemplateUsageMessage{
		CenterID:  centerID,
		Lines:     make([]UsageLine, 0, len(lines)),
		Timestamp: time.Now(),
	}
	for _, l := range lines {
		if msg.BudgetID == "" {
			msg.BudgetID = l.BudgetID
		}
		msg.Lines = append(msg.Lines, UsageLine{
			KeyActivity:       l.KeyActivity,
			MeansType:         l.MeansType,
			NomenclatureCode:  l.NomenclatureCode,
			NomenclatureLabel: l.NomenclatureLabel,
			FinancingCategory: string(l.FinancingCategory),
		})
	}
	return msg
}

// ExpenseLines rebuilds the lines a TemplateStore needs to record usage.
func (m *TemplateUsageMessage) ExpenseLines() []budget.ExpenseLine {
	lines := make([]budget.ExpenseLine, len(m.Lines))
	for i, l := range m.Lines {
		lines[i] = budget.ExpenseLine{
			BudgetID:          m.BudgetID,
			KeyActivity:       l.KeyActivity,
			MeansType:         l.MeansType,
			NomenclatureCode:  l.NomenclatureCode,
			NomenclatureLabel: l.NomenclatureLabel,
			FinancingCategory: budget.FinancingCategory(l.FinancingCategory),
		}
	}
	return lines
}

// ToJSON converts the message to JSON bytes
func (m *TemplateUsageMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TemplateUsageMessageFromJSON creates a message from JSON bytes
func TemplateUsageMessageFromJSON(data []byte) (*TemplateUsageMessage, error) {
	var msg TemplateUsageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
