package rewriter

// removeN deletes the n bytes at buf[index:index+n], shifting everything
// after them left by n and returning the shrunk slice. The backing array
// is reused; nothing is allocated.
func removeN(buf []byte, index, n int) []byte {
	if n == 0 {
		return buf
	}
	copy(buf[index:], buf[index+n:])
	return buf[:len(buf)-n]
}

// shiftRight makes room for n new bytes at index by moving buf[index:] n
// places to the right. It grows buf into its own spare capacity, so the
// caller must pass a slice whose capacity (not just length) can hold the
// result — in the hot path that's internal/proxy's heading buffer, sliced
// down to the bytes accumulated so far.
func shiftRight(buf []byte, index, n int) []byte {
	if n == 0 {
		return buf
	}
	buf = buf[:len(buf)+n]
	copy(buf[index+n:], buf[index:len(buf)-n])
	return buf
}

// numToBytes renders n as decimal ASCII into a fixed 5-byte array,
// returning the digit count. Callers guarantee n != 0; numToBytes(0)
// returns a zero digit count, matching the Rust original it's ported
// from (ports are always non-zero by the time they reach here).
func numToBytes(n uint16) ([5]byte, int) {
	var bytes [5]byte
	i := 0
	for n > 0 {
		bytes[i] = byte(n%10) + '0'
		n /= 10
		i++
	}
	for j := 0; j < i/2; j++ {
		bytes[j], bytes[i-j-1] = bytes[i-j-1], bytes[j]
	}
	return bytes, i
}
