package crypto

import (
	"filippo.io/edwards25519/field"
)

// Curve25519 in Montgomery form: v^2 = u^3 + A*u^2 + u, with non-square 2.
var (
	feOne  = new(field.Element).One()
	feA    = new(field.Element).Mult32(feOne, 486662)
	feNegA = new(field.Element).Negate(feA)
)

// ElligatorMap maps a 32-byte representative to the u coordinate of a curve
// point. The two most significant bits of hidden are padding and are ignored.
//
//	w = -A / (1 + 2r^2)
//	u = w        if w^3 + A*w^2 + w is a square
//	u = -w - A   otherwise
func ElligatorMap(hidden [32]byte) [32]byte {
	hidden[31] &= 0x3f
	r, err := new(field.Element).SetBytes(hidden[:])
	if err != nil {
		panic("crypto: field element from 32 bytes failed")
	}

	den := new(field.Element).Square(r)
	den.Add(den, den)
	den.Add(den, feOne)
	w := new(field.Element).Invert(den)
	w.Multiply(w, feNegA)

	f := new(field.Element).Add(w, feA)
	f.Multiply(f, w)
	f.Add(f, feOne)
	f.Multiply(f, w)
	_, isSquare := new(field.Element).SqrtRatio(f, feOne)

	alt := new(field.Element).Add(w, feA)
	alt.Negate(alt)
	u := new(field.Element).Select(w, alt, isSquare)

	var out [32]byte
	copy(out[:], u.Bytes())
	return out
}

// ElligatorReverse computes a representative of the public key u. The low bit
// of tweak picks one of the two preimages and its two high bits fill the
// padding bits. It reports false when u has no representative, which happens
// for about half of all points.
func ElligatorReverse(public [32]byte, tweak byte) ([32]byte, bool) {
	var out [32]byte
	u, err := new(field.Element).SetBytes(public[:])
	if err != nil {
		return out, false
	}

	uA := new(field.Element).Add(u, feA)
	t := new(field.Element).Multiply(u, uA)
	t.Mult32(t, 2)
	t.Negate(t)
	isr, ok := new(field.Element).SqrtRatio(feOne, t)
	if ok == 0 {
		return out, false
	}

	num := new(field.Element).Select(uA, u, int(tweak&1))
	r := new(field.Element).Multiply(num, isr)

	// Keep r in [0, (p-1)/2] so it fits in 254 bits.
	twoR := new(field.Element).Add(r, r)
	neg := new(field.Element).Negate(r)
	r.Select(neg, r, twoR.IsNegative())

	copy(out[:], r.Bytes())
	out[31] |= tweak & 0xc0
	return out, true
}
