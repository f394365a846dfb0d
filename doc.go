// Package chatbridge holds the standard chat-completion protocol types shared by the adapter:
// request decoding, the chat configuration resolver, completion payloads and token counting.
// Transcript compaction lives in package transcript, tool-use parsing in toolparse and
// response shaping in shaper.
package chatbridge
