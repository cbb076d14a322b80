package chunkio

// IndexOfByte returns the index of the first c, or -1.
func (b *Buffer) IndexOfByte(c byte) int64 {
	return b.list.indexOfByte(c, 0, maxIndex)
}

// IndexOfByteFrom returns the index of the first c at or after from, or -1.
func (b *Buffer) IndexOfByteFrom(c byte, from int64) int64 {
	return b.list.indexOfByte(c, from, maxIndex)
}

// IndexOfByteRange returns the index of the first c in [from, to), or -1.
// It panics with an ArgumentError when from < 0 or from > to.
func (b *Buffer) IndexOfByteRange(c byte, from, to int64) int64 {
	return b.list.indexOfByte(c, from, to)
}

// IndexOf returns the index of the first occurrence of pattern, or -1.
// Matches may span any number of segments. It panics with an ArgumentError
// when pattern is empty.
func (b *Buffer) IndexOf(pattern ByteString) int64 {
	return b.list.indexOf(pattern.data, 0)
}

// IndexOfFrom is IndexOf starting at from.
func (b *Buffer) IndexOfFrom(pattern ByteString, from int64) int64 {
	return b.list.indexOf(pattern.data, from)
}

// IndexOfElement returns the index of the first byte that appears in set, or -1.
func (b *Buffer) IndexOfElement(set ByteString) int64 {
	return b.list.indexOfElement(set.data, 0)
}

// IndexOfElementFrom is IndexOfElement starting at from.
func (b *Buffer) IndexOfElementFrom(set ByteString, from int64) int64 {
	return b.list.indexOfElement(set.data, from)
}

// RangeEquals reports whether n bytes at offset equal n bytes of pattern at
// patternOffset. Out-of-range arguments on either side yield false.
func (b *Buffer) RangeEquals(offset int64, pattern ByteString, patternOffset, n int) bool {
	if offset < 0 || patternOffset < 0 || n < 0 ||
		b.list.size-offset < int64(n) ||
		len(pattern.data)-patternOffset < n {
		return false
	}
	return b.list.rangeEquals(offset, pattern.data[patternOffset:patternOffset+n])
}

// Select consumes the option that prefixes the buffer and returns its index.
// When several options match the longest wins; among equal lengths the
// earliest wins. Returns -1, consuming nothing, when no option matches.
func (b *Buffer) Select(opts *Options) int {
	i, _ := b.selectPrefix(opts)
	if i >= 0 {
		b.list.remove(int64(len(opts.items[i].data)))
	}
	return i
}

// selectPrefix finds the option Select would choose without consuming it.
// truncated reports that the buffer is itself a proper prefix of a longer
// option, so more data could change the answer.
func (b *Buffer) selectPrefix(opts *Options) (index int, truncated bool) {
	index = -1
	best := -1
	for i, opt := range opts.items {
		n := len(opt.data)
		if int64(n) > b.list.size {
			if !truncated && b.list.rangeEquals(0, opt.data[:b.list.size]) {
				truncated = true
			}
			continue
		}
		if n > best && b.list.rangeEquals(0, opt.data) {
			index, best = i, n
		}
	}
	return index, truncated
}
