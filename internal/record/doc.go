// Package record stores the generic records that automation actions
// create, update and delete.
//
// A record is a JSON document addressed by scope and module (for example
// scope "tasks", module "board"). The store does not interpret the data;
// UPDATE actions merge their rendered fields into the existing document.
package record
