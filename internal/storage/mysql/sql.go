package mysql

const clinicColumns = `id, name, sido_nm, sigun_nm, dong_nm, lot_address, road_address, phone, rating, review_count, update_time`

const reviewColumns = "id, clinic_id, user_id, rating, comment, treatment_nm, receipt_image, create_time"

const getClinicSQL = `SELECT ` + clinicColumns + ` FROM clinics WHERE id = ?`

// uses the (clinic_id, create_time) index
const listReviewsByClinicSQL = `
SELECT ` + reviewColumns + `
FROM reviews USE INDEX (fk_clinic_id)
WHERE clinic_id = ?
ORDER BY create_time DESC, id DESC
LIMIT ?`

const insertReviewSQL = `
INSERT INTO reviews
  (clinic_id, user_id, rating, comment, treatment_nm, receipt_image, create_time)
VALUES
  (?, ?, ?, ?, ?, ?, ?)`

// row lock held until commit/rollback
const lockClinicAggregateSQL = `SELECT rating, review_count FROM clinics WHERE id = ? FOR UPDATE`

const updateClinicRatingSQL = `
UPDATE clinics
SET rating = ?, review_count = ?, update_time = ?
WHERE id = ?`

const listClinicIDsSQL = `SELECT id FROM clinics ORDER BY id`

const lockClinicSQL = `SELECT id FROM clinics WHERE id = ? FOR UPDATE`

const aggregateReviewsSQL = `
SELECT COUNT(*), COALESCE(AVG(rating), 0)
FROM reviews
WHERE clinic_id = ?`
