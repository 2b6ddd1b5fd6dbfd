package realtime

import "log/slog"

// SendMessage sends a direct message.
func (c *Client) SendMessage(receiverID int64, messageType, content string) bool {
	return c.Emit(EmitSendMessage, SendMessagePayload{
		ReceiverID:  receiverID,
		MessageType: messageType,
		Content:     content,
	})
}

func (c *Client) SendTyping(receiverID int64, isTyping bool) bool {
	return c.Emit(EmitTyping, TypingPayload{ReceiverID: receiverID, IsTyping: isTyping})
}

func (c *Client) MarkRead(conversationID, senderID int64) bool {
	return c.Emit(EmitMarkRead, MarkReadPayload{ConversationID: conversationID, SenderID: senderID})
}

func (c *Client) JoinGroup(groupID int64) bool {
	return c.Emit(EmitJoinGroup, GroupPayload{GroupID: groupID})
}

func (c *Client) LeaveGroupRoom(groupID int64) bool {
	return c.Emit(EmitLeaveGroupRoom, GroupPayload{GroupID: groupID})
}

func (c *Client) SendGroupMessage(groupID int64, messageType, content string) bool {
	return c.Emit(EmitSendGroupMessage, GroupMessagePayload{
		GroupID:     groupID,
		MessageType: messageType,
		Content:     content,
	})
}

// CallUser offers a call. signal is the local session description, relayed as-is.
func (c *Client) CallUser(receiverID int64, signal any, isVideo bool) bool {
	c.logger.Info("Calling user", slog.Int64("receiverID", receiverID), slog.Bool("video", isVideo))
	return c.Emit(EmitCallUser, CallUserPayload{ReceiverID: receiverID, Signal: signal, IsVideo: isVideo})
}

func (c *Client) AnswerCall(callerID int64, signal any) bool {
	c.logger.Info("Answering call", slog.Int64("callerID", callerID))
	return c.Emit(EmitAnswerCall, AnswerCallPayload{CallerID: callerID, Signal: signal})
}

func (c *Client) RejectCall(callerID int64) bool {
	c.logger.Info("Rejecting call", slog.Int64("callerID", callerID))
	return c.Emit(EmitRejectCall, RejectCallPayload{CallerID: callerID})
}

func (c *Client) EndCall(otherUserID int64) bool {
	c.logger.Info("Ending call", slog.Int64("otherUserID", otherUserID))
	return c.Emit(EmitEndCall, EndCallPayload{OtherUserID: otherUserID})
}

func (c *Client) SendIceCandidate(otherUserID int64, candidate any) bool {
	return c.Emit(EmitIceCandidate, IceCandidatePayload{OtherUserID: otherUserID, Candidate: candidate})
}
