// Package gen2 implements the reader-side core of the EPC Gen2
// (ISO 18000-63) air-interface protocol: bit-packed command encoding,
// Q-slotted anti-collision inventory, and tag memory access, driven
// over a caller-supplied Radio/Clock pair.
package gen2
