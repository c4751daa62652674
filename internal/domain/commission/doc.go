// Package commission models yearly customer purchase commissions.
//
// A Record aggregates one customer's purchases, invoices and payments within
// a fiscal year, selects the highest commission tier reached and derives its
// lifecycle state. Once the fiscal year has ended an eligible record can be
// paid out through a credit note.
package commission
