package core

import "fmt"

// Storage layout. Everything the engine persists lives under groups/<id>/,
// except path permission grants which live under permissions/<id>/.

func groupConfigPath(groupID string) string {
	return fmt.Sprintf("groups/%s/config", groupID)
}

func memberCountPath(groupID string) string {
	return fmt.Sprintf("groups/%s/member_count", groupID)
}

func proposalCounterPath(groupID string) string {
	return fmt.Sprintf("groups/%s/proposal_counter", groupID)
}

func memberPath(groupID, account string) string {
	return fmt.Sprintf("groups/%s/members/%s", groupID, account)
}

func memberNoncePath(groupID, account string) string {
	return fmt.Sprintf("groups/%s/member_nonce/%s", groupID, account)
}

func blacklistPath(groupID, account string) string {
	return fmt.Sprintf("groups/%s/blacklist/%s", groupID, account)
}

func proposalPath(groupID, proposalID string) string {
	return fmt.Sprintf("groups/%s/proposals/%s", groupID, proposalID)
}

func tallyPath(groupID, proposalID string) string {
	return fmt.Sprintf("groups/%s/tallies/%s", groupID, proposalID)
}

func votePath(groupID, proposalID, voter string) string {
	return fmt.Sprintf("groups/%s/votes/%s/%s", groupID, proposalID, voter)
}

func executionPath(groupID, proposalID string) string {
	return fmt.Sprintf("groups/%s/executions/%s", groupID, proposalID)
}

func grantPath(groupID, account, path string) string {
	return fmt.Sprintf("permissions/%s/%s/%s", groupID, account, path)
}

func groupRootPath(groupID string) string {
	return fmt.Sprintf("groups/%s", groupID)
}

func groupContentPath(groupID string) string {
	return fmt.Sprintf("groups/%s/content", groupID)
}
