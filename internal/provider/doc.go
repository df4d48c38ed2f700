/*
Package provider implements the Adapter interface once per supported cloud
(aws, azure, gcp) plus an in-memory mock for tests. Every adapter speaks
enumerate/stat/copy_object/delete/set_storage_class/presign_get and
translates its provider's native errors into the orcherr taxonomy before
returning, so the catalog, migration engine, and placement classifier
never see an AWS, Azure, or GCS error type directly.
*/
package provider
