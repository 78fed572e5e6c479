package tds

// NBCROW (Null Bitmap Compressed Row) is an alternative row encoding:
// a bitmap at the start of the row marks which columns are NULL, and
// only non-NULL column values follow, in column order.

// nullBitmapLen returns the byte length of the bitmap for numColumns.
func nullBitmapLen(numColumns int) int {
	return (numColumns + 7) / 8
}

// isNullInBitmap reports whether columnIndex is marked NULL.
func isNullInBitmap(bitmap []byte, columnIndex int) bool {
	byteIndex := columnIndex / 8
	bitIndex := uint(columnIndex % 8)
	if byteIndex >= len(bitmap) {
		return false
	}
	return bitmap[byteIndex]&(1<<bitIndex) != 0
}

// decodeNBCRow reads an NBCROW token body: the null bitmap followed
// by the non-NULL column values, using columns for their types.
func decodeNBCRow(r *reader, columns []Column) (Row, error) {
	bitmap, err := r.bytes(nullBitmapLen(len(columns)))
	if err != nil {
		return nil, err
	}
	row := make(Row, len(columns))
	for i, col := range columns {
		if isNullInBitmap(bitmap, i) {
			row[i] = nil
			continue
		}
		v, err := DefaultCodecs.Decode(r, col.Info)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}
