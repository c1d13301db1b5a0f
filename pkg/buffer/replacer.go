package buffer

// FrameID is an index into the buffer pool's frame array.
type FrameID int

// Replacer tracks the frames that are allowed to be evicted and picks the next
// victim among them. A frame enters on Unpin (its pin count dropped to 0) and
// leaves on Pin or when it is chosen by Victim.
type Replacer interface {
	Victim() (FrameID, bool)
	Pin(frameID FrameID)
	Unpin(frameID FrameID)
	Size() int
}
