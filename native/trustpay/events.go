package trustpay

import (
	"encoding/hex"
	"strconv"

	"trustpay/core/types"
)

const (
	EventTypeContractCreated    = "trustpay.created"
	EventTypeContractAccepted   = "trustpay.accepted"
	EventTypeContractDeclined   = "trustpay.declined"
	EventTypeContractCancelled  = "trustpay.cancelled"
	EventTypeContractCompleted  = "trustpay.completed"
	EventTypeMilestoneCompleted = "trustpay.milestone_completed"
	EventTypeMilestoneApproved  = "trustpay.milestone_approved"
	EventTypeDisputeRaised      = "trustpay.disputed"
	EventTypeDisputeResolved    = "trustpay.resolved"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// contract.
func NewCreatedEvent(c *Contract) *types.Event { return newContractEvent(EventTypeContractCreated, c) }

// NewAcceptedEvent returns the canonical event payload emitted when the payer
// accepts and funds a pending contract.
func NewAcceptedEvent(c *Contract) *types.Event {
	return newContractEvent(EventTypeContractAccepted, c)
}

// NewDeclinedEvent returns the canonical event payload emitted when the payer
// declines a pending contract.
func NewDeclinedEvent(c *Contract) *types.Event {
	return newContractEvent(EventTypeContractDeclined, c)
}

// NewCancelledEvent returns the canonical event payload emitted when the
// creator cancels a pending contract.
func NewCancelledEvent(c *Contract) *types.Event {
	return newContractEvent(EventTypeContractCancelled, c)
}

// NewCompletedEvent returns the canonical event payload emitted when the last
// milestone is released and the contract closes.
func NewCompletedEvent(c *Contract) *types.Event {
	return newContractEvent(EventTypeContractCompleted, c)
}

// NewMilestoneCompletedEvent returns the payload emitted when the recipient
// marks a milestone as delivered.
func NewMilestoneCompletedEvent(c *Contract, index int) *types.Event {
	return newMilestoneEvent(EventTypeMilestoneCompleted, c, index)
}

// NewMilestoneApprovedEvent returns the payload emitted when the payer
// approves a milestone and funds are released.
func NewMilestoneApprovedEvent(c *Contract, index int, fee string) *types.Event {
	evt := newMilestoneEvent(EventTypeMilestoneApproved, c, index)
	evt.Attributes["fee"] = fee
	return evt
}

// NewDisputedEvent returns the payload emitted when a milestone enters
// dispute.
func NewDisputedEvent(c *Contract, index int, disputer [20]byte) *types.Event {
	evt := newMilestoneEvent(EventTypeDisputeRaised, c, index)
	evt.Attributes["disputer"] = hex.EncodeToString(disputer[:])
	if index >= 0 && index < len(c.Milestones) && c.Milestones[index] != nil {
		evt.Attributes["disputeId"] = c.Milestones[index].DisputeID
	}
	return evt
}

// NewResolvedEvent returns the payload emitted when the resolver settles a
// disputed milestone.
func NewResolvedEvent(c *Contract, index int, resolution Resolution) *types.Event {
	evt := newMilestoneEvent(EventTypeDisputeResolved, c, index)
	evt.Attributes["resolution"] = resolution.String()
	return evt
}

func newContractEvent(eventType string, c *Contract) *types.Event {
	attrs := make(map[string]string)
	if c == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(c.ID[:])
	attrs["payer"] = hex.EncodeToString(c.Payer[:])
	attrs["recipient"] = hex.EncodeToString(c.Recipient[:])
	attrs["asset"] = c.Asset
	if c.TotalAmount != nil {
		attrs["totalAmount"] = c.TotalAmount.String()
	}
	attrs["status"] = c.Status.String()
	attrs["feeBps"] = strconv.FormatUint(uint64(c.FeeBps), 10)
	attrs["milestones"] = strconv.Itoa(len(c.Milestones))
	attrs["createdAt"] = strconv.FormatInt(c.CreatedAt, 10)
	if c.Deadline > 0 {
		attrs["deadline"] = strconv.FormatInt(c.Deadline, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newMilestoneEvent(eventType string, c *Contract, index int) *types.Event {
	evt := newContractEvent(eventType, c)
	evt.Attributes["milestoneIndex"] = strconv.Itoa(index)
	if c != nil && index >= 0 && index < len(c.Milestones) && c.Milestones[index] != nil {
		m := c.Milestones[index]
		evt.Attributes["description"] = m.Description
		if m.Amount != nil {
			evt.Attributes["amount"] = m.Amount.String()
		}
		evt.Attributes["milestoneStatus"] = m.Status.String()
	}
	return evt
}
