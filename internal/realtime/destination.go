package realtime

import (
	"fmt"
	"strings"
)

const (
	projectTopicPrefix = "/topic/project/"
	changesSuffix      = "/changes"

	// UserNotificationsDestination はクライアントが購読する個人宛て通知の宛先。
	// 実際の配信先は接続の利用者ごとに分かれる。
	UserNotificationsDestination = "/user/queue/notifications"
)

// ProjectTopic はプロジェクトの更新メッセージが配信されるトピック名を返す。
func ProjectTopic(projectID string) string {
	return projectTopicPrefix + projectID
}

// ProjectChangesTopic はプロジェクトの変更履歴が配信されるトピック名を返す。
func ProjectChangesTopic(projectID string) string {
	return projectTopicPrefix + projectID + changesSuffix
}

// UserTopic は利用者ごとの通知キューの内部トピック名を返す。
func UserTopic(identity string) string {
	return "/user/" + identity + "/queue/notifications"
}

type destinationKind int

const (
	destProject destinationKind = iota
	destProjectChanges
	destUserQueue
)

type destination struct {
	kind      destinationKind
	projectID string
}

// topic は購読者の利用者IDを考慮した内部トピック名を返す。
func (d destination) topic(identity string) string {
	switch d.kind {
	case destProjectChanges:
		return ProjectChangesTopic(d.projectID)
	case destUserQueue:
		return UserTopic(identity)
	default:
		return ProjectTopic(d.projectID)
	}
}

// parseDestination はSUBSCRIBEフレームの宛先を解析する。
func parseDestination(dest string) (destination, error) {
	if dest == UserNotificationsDestination {
		return destination{kind: destUserQueue}, nil
	}

	rest, ok := strings.CutPrefix(dest, projectTopicPrefix)
	if !ok {
		return destination{}, fmt.Errorf("unknown destination: %q", dest)
	}

	kind := destProject
	if id, found := strings.CutSuffix(rest, changesSuffix); found {
		kind = destProjectChanges
		rest = id
	}
	if rest == "" || strings.Contains(rest, "/") {
		return destination{}, fmt.Errorf("unknown destination: %q", dest)
	}
	return destination{kind: kind, projectID: rest}, nil
}
