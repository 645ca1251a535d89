package model

import "time"

// ChangeType は監査ログに記録される変更の種別を表す。閉じた集合であり、
// 説明文は種別から一意に決まる。
type ChangeType string

const (
	ChangeAddedProject           ChangeType = "ADDED_PROJECT"
	ChangeDeletedProject         ChangeType = "DELETED_PROJECT"
	ChangeChangedProjectSettings ChangeType = "CHANGED_PROJECT_SETTINGS"
	ChangeLeftProject            ChangeType = "LEFT_PROJECT"
	ChangeAddedMember            ChangeType = "ADDED_MEMBER"
	ChangeRemovedMember          ChangeType = "REMOVED_MEMBER"
	ChangeAddedIdea              ChangeType = "ADDED_IDEA"
	ChangeModifiedIdea           ChangeType = "MODIFIED_IDEA"
	ChangeClosedIdea             ChangeType = "CLOSED_IDEA"
	ChangeDeletedIdea            ChangeType = "DELETED_IDEA"
	ChangeAddedComment           ChangeType = "ADDED_COMMENT"
	ChangeDeletedComment         ChangeType = "DELETED_COMMENT"
	ChangeSentMessage            ChangeType = "SENT_MESSAGE"
	ChangeUpvote                 ChangeType = "UPVOTE"
	ChangeDownvote               ChangeType = "DOWNVOTE"
	ChangeSentFriendRequest      ChangeType = "SENT_FRIEND_REQUEST"
	ChangeAcceptedFriendRequest  ChangeType = "ACCEPTED_FRIEND_REQUEST"
	ChangeRejectedFriendRequest  ChangeType = "REJECTED_FRIEND_REQUEST"
	ChangeRemovedFriend          ChangeType = "REMOVED_FRIEND"
)

var changeDescriptions = map[ChangeType]string{
	ChangeAddedProject:           "Created the project",
	ChangeDeletedProject:         "Deleted the project",
	ChangeChangedProjectSettings: "Changed project settings",
	ChangeLeftProject:            "Left the project",
	ChangeAddedMember:            "Added a member",
	ChangeRemovedMember:          "Removed a member",
	ChangeAddedIdea:              "Added an idea",
	ChangeModifiedIdea:           "Modified an idea",
	ChangeClosedIdea:             "Closed an idea",
	ChangeDeletedIdea:            "Deleted an idea",
	ChangeAddedComment:           "Added a comment",
	ChangeDeletedComment:         "Deleted a comment",
	ChangeSentMessage:            "Sent a chat message",
	ChangeUpvote:                 "Upvoted an idea",
	ChangeDownvote:               "Downvoted an idea",
	ChangeSentFriendRequest:      "Sent a friend request",
	ChangeAcceptedFriendRequest:  "Accepted a friend request",
	ChangeRejectedFriendRequest:  "Rejected a friend request",
	ChangeRemovedFriend:          "Removed a friend",
}

// Valid は定義済みの種別かどうかを返す。
func (t ChangeType) Valid() bool {
	_, ok := changeDescriptions[t]
	return ok
}

// Description は種別に対応する説明文を返す。未定義の種別には空文字を返す。
func (t ChangeType) Description() string {
	return changeDescriptions[t]
}

// UserScoped はプロジェクトに属さずユーザー間で完結する種別かどうかを返す。
func (t ChangeType) UserScoped() bool {
	switch t {
	case ChangeSentFriendRequest, ChangeAcceptedFriendRequest,
		ChangeRejectedFriendRequest, ChangeRemovedFriend:
		return true
	}
	return false
}

// ChangeEvent は受理された変更の不変な監査記録を表す。
// プロジェクト単位の変更はProjectIDを、フレンド関連の変更はTargetUserIDを持つ。
type ChangeEvent struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"projectId,omitempty"`
	ActorID      string     `json:"actorId"`
	TargetUserID string     `json:"targetUserId,omitempty"`
	Type         ChangeType `json:"changeType"`
	Description  string     `json:"description"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// EntityKind はリアルタイム更新の対象エンティティ種別を表す。
type EntityKind string

const (
	EntityProject EntityKind = "project"
	EntityIdea    EntityKind = "idea"
	EntityComment EntityKind = "comment"
	EntityMember  EntityKind = "member"
	EntityMessage EntityKind = "message"
)

// UpdateAction はリアルタイム更新の操作種別を表す。
type UpdateAction string

const (
	ActionCreated UpdateAction = "created"
	ActionUpdated UpdateAction = "updated"
	ActionDeleted UpdateAction = "deleted"
)

// UpdateMessage はプロジェクトチャンネルに配信される更新メッセージを表す。
type UpdateMessage struct {
	EntityKind EntityKind   `json:"entityKind"`
	EntityID   string       `json:"entityId"`
	ProjectID  string       `json:"projectId"`
	Action     UpdateAction `json:"action"`
	Payload    any          `json:"payload,omitempty"`
}
