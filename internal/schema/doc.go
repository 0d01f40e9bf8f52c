// Package schema defines the POS records (categories, items, sales) and their
// remote document form.
//
// # Overview
//
// Every record exists twice: as a row in the local store and as a document in
// the remote store. Both copies share the record id. This package owns the
// conversion between the typed records and the loosely typed remote documents.
//
// # Remote Documents
//
// Remote documents are decoded through DecodeCategory, DecodeItem and
// DecodeSale. Decoding is tolerant:
//
//   - numbers may arrive as integers, floats, json.Number or numeric strings
//   - timestamps may arrive as a native Timestamp, a {seconds,nanos} object,
//     epoch milliseconds, or a numeric string
//   - missing optional fields take their defaults (item type "water",
//     payment type "Cash", creation time "now")
//
// A document without a name cannot be decoded. Its decoder returns a
// *DecodeError wrapping ErrMissingName, and callers skip the record.
//
// Encoding goes the other way through the Document method of each record, using
// the remote field names:
//
//	category: categoryId, categoryName, createdAt
//	item:     itemId, itemName, itemPrice, categoryId, itemType, createdAt
//	sales:    finalPrice, dateTime, itemsJson, paymentType, isSynced
//
// # Line Items
//
// A sale stores its cart as a JSON string of line-item snapshots:
//
//	[{"item":{"itemId":"i1","itemName":"Water","itemPrice":12,"categoryId":"c1"},"quantity":2}]
//
// EncodeLineItems and DecodeLineItems convert between that string and
// []LineItem.
package schema
