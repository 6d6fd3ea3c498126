package storage

import "fmt"

// Subscription binds one chat group to one DAO. ID is "{groupId}:{daoAddress}"
// so the (group, DAO) pair is unique by construction.
type Subscription struct {
	ID         string
	GroupID    int64
	UserID     int64
	DaoAddress string
	DaoName    string
}

// SeenProposal records that a (proposal, group) pair has already triggered
// its lifecycle notifications. Existence is the only fact recorded.
type SeenProposal struct {
	ID      string // "{proposalAddress}:{groupId}"
	GroupID int64
}

// SubscriptionID builds the composite subscription key.
func SubscriptionID(groupID int64, daoAddress string) string {
	return fmt.Sprintf("%d:%s", groupID, daoAddress)
}

// SeenProposalID builds the composite seen-marker key.
func SeenProposalID(proposalAddress string, groupID int64) string {
	return fmt.Sprintf("%s:%d", proposalAddress, groupID)
}
